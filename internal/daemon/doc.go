// Package daemon hosts the recorder's long-running process: it enforces
// single-instance execution with a lock file, owns the write-owning cache,
// watches the SDI capture device over udev netlink, and serves the single
// recording-session slot. Exactly one recording session may be live at a
// time; shutting the daemon down aborts a live session as system-initiated
// before the lock is released.
package daemon
