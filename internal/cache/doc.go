// Package cache maintains the authoritative registry of digitised
// artifacts on disk. It reconciles three sources of truth at startup - the
// persistence store, the directory contents, and a live filesystem watch -
// and then serializes all cache mutations: reserving filenames for files
// being written (staging subdirectory), finalising them into the main
// directory, and removing them when exported or aborted.
package cache
