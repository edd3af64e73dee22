// Package recording drives one tape-to-disk ingest session.
//
// A Session runs a single control goroutine polling request flags set by
// the public trigger methods, executing at most one action per tick with
// abort taking priority over everything else. It owns the session's
// destination rows, its cache reservations, the RecordingItems aggregate
// the operator splits the capture with, and the chunking worker while
// segmentation runs.
package recording
