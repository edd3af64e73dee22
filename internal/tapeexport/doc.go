// Package tapeexport drives batches of completed cache files onto LTO
// tape. A session runs on a single control goroutine: it selects a batch
// (automatically from the oldest completed backlog, or from an explicit
// operator list), waits for a ready tape, hands the batch to the drive,
// and polls the drive's running offset to track per-file progress. Other
// goroutines only set request flags and read status snapshots.
//
// Cache files are deleted only after the drive confirms the whole batch:
// an abort or a drive failure leaves every file in place for a retry on a
// fresh session.
package tapeexport
