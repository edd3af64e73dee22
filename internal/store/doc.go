// Package store persists recorder state in SQLite: cache inventories,
// recording sessions with their destinations, LTO export sessions, and
// per-spool instance counters.
package store
