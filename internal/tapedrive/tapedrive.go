// Package tapedrive abstracts the LTO drive the export session writes to.
package tapedrive

// TapeState is the drive's readiness as reported by its stats call.
type TapeState int

const (
	TapeNotPresent TapeState = iota
	TapeBusy
	TapeReady
)

func (s TapeState) String() string {
	switch s {
	case TapeNotPresent:
		return "no tape"
	case TapeBusy:
		return "busy"
	case TapeReady:
		return "ready"
	default:
		return "unknown"
	}
}

// StoreState is the state of an in-flight store operation.
type StoreState int

const (
	StoreIdle StoreState = iota
	StoreRunning
	StoreCompleted
	StoreFailed
)

// GeneralStats is the drive's steady-state report.
type GeneralStats struct {
	TapeState TapeState
}

// StoreStats is polled while a store operation runs. Offset is the index of
// the file currently being written; every file before it is on tape.
type StoreStats struct {
	Offset   int
	State    StoreState
	Filename string
}

// Drive is the export session's view of the LTO hardware.
type Drive interface {
	GeneralStats() GeneralStats
	// StoreToTape starts writing the given cache file paths to the tape
	// identified by barcode. Returns whether the drive accepted the job.
	StoreToTape(files []string, barcode string) bool
	// StoreCompleted reports whether the running store has finished; poll
	// StoreStats to distinguish success from failure.
	StoreCompleted() bool
	AbortStore() bool
	StoreStats() StoreStats
}
