// Package config loads, normalizes, and validates tapearc's TOML
// configuration. Paths are tilde-expanded and made absolute at load time so
// the rest of the repository never deals with relative or unexpanded paths.
package config
