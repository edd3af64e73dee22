// Package capture abstracts the SDI capture subsystem, VTR transport
// control, and the confidence-replay player. Real implementations sit on
// capture-card SDKs and serial protocol drivers; the session state machines
// only depend on these contracts.
package capture

import "tapearc/internal/mxf"

// VTRState is the coarse transport state a deck reports.
type VTRState int

const (
	VTRNotConnected VTRState = iota
	VTRRemoteLockout
	VTRTapeUnthreaded
	VTRStopped
	VTRPaused
	VTRPlay
	VTRFastForward
	VTRFastRewind
	VTREjecting
	VTRRecording
	VTRSeeking
	VTRJog
	VTROther
)

func (s VTRState) String() string {
	switch s {
	case VTRNotConnected:
		return "not connected"
	case VTRRemoteLockout:
		return "remote lockout"
	case VTRTapeUnthreaded:
		return "tape unthreaded"
	case VTRStopped:
		return "stopped"
	case VTRPaused:
		return "paused"
	case VTRPlay:
		return "play"
	case VTRFastForward:
		return "fast forward"
	case VTRFastRewind:
		return "fast rewind"
	case VTREjecting:
		return "ejecting"
	case VTRRecording:
		return "recording"
	case VTRSeeking:
		return "seeking"
	case VTRJog:
		return "jog"
	default:
		return "other"
	}
}

// VTRControl drives one deck. The bool returns report whether the deck
// accepted the command; state changes are confirmed by polling State.
type VTRControl interface {
	State() VTRState
	Play() bool
	Stop() bool
	Record() bool
	StandbyOn() bool
	StandbyOff() bool
}

// RecordResult carries everything StopRecord hands back: the defect streams
// gathered during capture and the final stream geometry.
type RecordResult struct {
	DurationFrames int64
	MaterialUID    string
	FileUID        string
	PSEFailures    []mxf.DefectRecord
	VTRErrors      []mxf.DefectRecord
	Dropouts       []mxf.DefectRecord
}

// GeneralStats is the capture card's steady-state signal report.
type GeneralStats struct {
	SignalPresent bool
	SignalLocked  bool
}

// RecordStats is polled while a record runs.
type RecordStats struct {
	DurationFrames int64
	FileSize       int64
	DropoutCount   int64
	VTRErrorCount  int64
}

// Capture is the SDI ingest subsystem.
type Capture interface {
	// StartRecord begins a single-item capture to the given output path.
	StartRecord(outputPath, browsePath string) bool
	// StartMultiItemRecord begins a page-file capture against a filename
	// template ending in the page suffix.
	StartMultiItemRecord(pageTemplate, browsePath string) bool
	StopRecord() (*RecordResult, bool)
	StopMultiItemRecord() (*RecordResult, bool)
	AbortRecord() bool
	// Busy reports whether a record is currently running. Sessions refuse
	// to start while the subsystem is held by another recording.
	Busy() bool
	GeneralStats() GeneralStats
	RecordStats() RecordStats
}

// ConfidenceReplay plays captured material back during review.
type ConfidenceReplay interface {
	Start(filename string) bool
	SetFile(filename string) bool
	Stop() bool
}
