package store

import "time"

// SessionStatus tracks the lifecycle of a recording session row.
type SessionStatus string

const (
	SessionRecording SessionStatus = "recording"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
)

// AbortInitiator records who requested an abort.
type AbortInitiator string

const (
	AbortByUser   AbortInitiator = "user"
	AbortBySystem AbortInitiator = "system"
)

// DestinationKind distinguishes the fixed set of destination types.
type DestinationKind string

const (
	DestHardDisk  DestinationKind = "harddisk"
	DestVideotape DestinationKind = "videotape"
)

// TransferStatus tracks one file's progress during a tape export.
type TransferStatus string

const (
	TransferNotStarted TransferStatus = "not_started"
	TransferStarted    TransferStatus = "started"
	TransferCompleted  TransferStatus = "completed"
	TransferFailed     TransferStatus = "failed"
)

// LTOSessionStatus tracks a tape export session row.
type LTOSessionStatus string

const (
	LTOSessionOpen      LTOSessionStatus = "open"
	LTOSessionCompleted LTOSessionStatus = "completed"
	LTOSessionAborted   LTOSessionStatus = "aborted"
)

// SourceItem describes one item on a source tape as catalogued.
type SourceItem struct {
	SpoolNumber     string
	ItemNumber      int
	ProgrammeNumber string
	MagazinePrefix  string
	ProductionCode  string
	ProgrammeTitle  string
}

// CacheRow is the persistence record identifying one cache directory.
type CacheRow struct {
	ID           int64
	RecorderName string
	Path         string
}

// CacheItemRow is the persistence record for one finalized cache artifact.
type CacheItemRow struct {
	ID               int64
	CacheID          int64
	DestinationID    int64
	Filename         string
	BrowseFilename   string
	PSEFilename      string
	IngestFormat     string
	Size             int64
	Duration         int64
	SessionID        int64
	SessionCreatedAt time.Time
	SessionComments  string
	SessionStatus    SessionStatus
	Source           SourceItem
	PSEResult        int
}

// SessionRow is the persistence record for one recording session.
type SessionRow struct {
	ID int64
	// UUID correlates the session across log lines and processes; row ids
	// are only unique within one database file.
	UUID           string
	CreatedAt      time.Time
	Comments       string
	Status         SessionStatus
	AbortInitiator AbortInitiator
	AbortReason    string
	VTRErrors      int64
	Dropouts       int64
}

// DestinationRow is one output target owned by a recording session.
type DestinationRow struct {
	ID             int64
	SessionID      int64
	Kind           DestinationKind
	Filename       string
	BrowseFilename string
	PSEFilename    string
	IngestFormat   string
	Size           int64
	Duration       int64
	MaterialUID    string
	FileUID        string
	Barcode        string
	Source         SourceItem
	PSEResult      int
}

// LTOSessionRow is one tape export batch.
type LTOSessionRow struct {
	ID             int64
	RecorderName   string
	Barcode        string
	CreatedAt      time.Time
	Status         LTOSessionStatus
	AbortInitiator AbortInitiator
	AbortReason    string
}

// LTOFileRow is one file within a tape export batch.
type LTOFileRow struct {
	ID            int64
	LTOSessionID  int64
	Sequence      int
	TapeFilename  string
	CacheFilename string
	Status        TransferStatus
	Size          int64
	Duration      int64
	IngestFormat  string
	Source        SourceItem
}
