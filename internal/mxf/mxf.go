// Package mxf defines the container-level types and reader/writer contracts
// the pipeline consumes. Codec internals live behind the interfaces; the
// pipeline only moves content packages and frame-indexed defect records.
package mxf

import "fmt"

// FrameRate is the PAL broadcast frame rate every source here runs at.
const FrameRate = 25

// PageSuffix is the extension of temporary page files written during
// multi-item capture.
const PageSuffix = ".mxfp"

// VideoLayout tags how a content package's video plane is arranged.
type VideoLayout int

const (
	// LayoutCompressed carries a codec bitstream (D10 path); the browse
	// decoder yields planar output itself.
	LayoutCompressed VideoLayout = iota
	// LayoutUYVY is the uncompressed interleaved capture layout.
	LayoutUYVY
	// LayoutPlanar420 is the planar layout browse encoders accept.
	LayoutPlanar420
)

// Timecode is one HH:MM:SS:FF reading at 25 fps.
type Timecode struct {
	Hours   int
	Minutes int
	Seconds int
	Frames  int
}

// TimecodeFromFrames converts a running frame count to a timecode.
func TimecodeFromFrames(count int64) Timecode {
	if count < 0 {
		count = 0
	}
	frames := int(count % FrameRate)
	totalSeconds := count / FrameRate
	return Timecode{
		Hours:   int(totalSeconds / 3600 % 24),
		Minutes: int(totalSeconds / 60 % 60),
		Seconds: int(totalSeconds % 60),
		Frames:  frames,
	}
}

func (t Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds, t.Frames)
}

// DefectKind distinguishes the three defect streams gathered during capture.
type DefectKind int

const (
	DefectPSEFailure DefectKind = iota
	DefectVTRError
	DefectDropout
)

func (k DefectKind) String() string {
	switch k {
	case DefectPSEFailure:
		return "pse_failure"
	case DefectVTRError:
		return "vtr_error"
	case DefectDropout:
		return "dropout"
	default:
		return "unknown"
	}
}

// DefectRecord is one frame-indexed defect. Position is relative to the
// start of whatever stream the record currently describes; chunking rewrites
// it from capture-relative to item-relative.
type DefectRecord struct {
	Kind     DefectKind
	Position int64
	Code     int
	Strength int
	VITC     Timecode
	LTC      Timecode
}

// ContentPackage is one frame of essence: video plane, per-track audio, and
// the two embedded timecode readings.
type ContentPackage struct {
	Video       []byte
	VideoLayout VideoLayout
	Width       int
	Height      int
	// Audio holds 16-bit PCM samples per track.
	Audio [][]int16
	VITC  Timecode
	LTC   Timecode
}

// InfaxData is the descriptive metadata persisted into a completed file.
type InfaxData struct {
	SpoolNumber     string
	ItemNumber      int
	ProgrammeNumber string
	MagazinePrefix  string
	ProductionCode  string
	ProgrammeTitle  string
	Format          string
	DurationFrames  int64
}

// Reader consumes one captured stream, page files included.
type Reader interface {
	// IsComplete reports whether every expected page of the capture is
	// present. Chunking refuses to start on an incomplete source.
	IsComplete() bool
	// NextFrame returns the next content package. Running out before the
	// expected duration is an error, not io.EOF.
	NextFrame() (*ContentPackage, error)
	// SkipFrames advances past n frames without decoding them.
	SkipFrames(n int64) error
	// ForwardTruncate discards page files whose frames have all been
	// consumed, reclaiming disk space mid-chunk.
	ForwardTruncate() error
	PSEFailures() []DefectRecord
	VTRErrors() []DefectRecord
	DigiBetaDropouts() []DefectRecord
	Close() error
}

// WriterConfig carries the per-item container parameters.
type WriterConfig struct {
	ComponentDepth  int
	AspectRatio     string
	AudioTracks     int
	IncludeChecksum bool
	PrimaryTimecode string
}

// Writer produces one output container file.
type Writer interface {
	WriteContentPackage(cp *ContentPackage) error
	// Complete finishes the file, embedding descriptive metadata and the
	// item's defect records.
	Complete(info InfaxData, defects []DefectRecord) error
	// Abort discards the partially written file.
	Abort() error
	MaterialUID() string
	FileUID() string
}

// WriterFactory opens a writer for one output path. Chunking calls it once
// per real item.
type WriterFactory func(path string, cfg WriterConfig) (Writer, error)
