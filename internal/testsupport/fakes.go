package testsupport

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tapearc/internal/capture"
	"tapearc/internal/mxf"
	"tapearc/internal/tapedrive"
)

// FakeReader is an mxf.Reader over synthesized frames.
type FakeReader struct {
	TotalFrames int64
	Incomplete  bool
	AudioTracks int
	Width       int
	Height      int
	Layout      mxf.VideoLayout
	PSE         []mxf.DefectRecord
	VTR         []mxf.DefectRecord
	Drops       []mxf.DefectRecord
	// FailAtFrame makes NextFrame fail on reaching this frame when > 0.
	FailAtFrame int64
	// FrameDelay slows every NextFrame down, for tests that interrupt a
	// consumer mid-stream.
	FrameDelay time.Duration

	pos       int64
	Truncates int
	Closed    bool
}

func (r *FakeReader) IsComplete() bool { return !r.Incomplete }

func (r *FakeReader) NextFrame() (*mxf.ContentPackage, error) {
	if r.FrameDelay > 0 {
		time.Sleep(r.FrameDelay)
	}
	if r.FailAtFrame > 0 && r.pos == r.FailAtFrame {
		return nil, fmt.Errorf("injected read failure at frame %d", r.pos)
	}
	if r.pos >= r.TotalFrames {
		return nil, fmt.Errorf("read past end of capture at frame %d", r.pos)
	}
	tracks := r.AudioTracks
	if tracks == 0 {
		tracks = 2
	}
	audio := make([][]int16, tracks)
	for i := range audio {
		audio[i] = []int16{int16(r.pos), int16(i)}
	}
	cp := &mxf.ContentPackage{
		Video:       []byte{byte(r.pos)},
		VideoLayout: r.Layout,
		Width:       r.Width,
		Height:      r.Height,
		Audio:       audio,
		VITC:        mxf.TimecodeFromFrames(r.pos),
		LTC:         mxf.TimecodeFromFrames(r.pos + 90000),
	}
	r.pos++
	return cp, nil
}

func (r *FakeReader) SkipFrames(n int64) error {
	if r.pos+n > r.TotalFrames {
		return fmt.Errorf("skip past end of capture at frame %d", r.pos)
	}
	r.pos += n
	return nil
}

func (r *FakeReader) ForwardTruncate() error {
	r.Truncates++
	return nil
}

func (r *FakeReader) PSEFailures() []mxf.DefectRecord      { return r.PSE }
func (r *FakeReader) VTRErrors() []mxf.DefectRecord        { return r.VTR }
func (r *FakeReader) DigiBetaDropouts() []mxf.DefectRecord { return r.Drops }

func (r *FakeReader) Close() error {
	r.Closed = true
	return nil
}

// FakeWriter records what an mxf.Writer was asked to produce and writes one
// byte per frame to its path on Complete so the file has a real size.
type FakeWriter struct {
	Path      string
	Cfg       mxf.WriterConfig
	Frames    int64
	Info      mxf.InfaxData
	Defects   []mxf.DefectRecord
	Completed bool
	Aborted   bool
	FailWrite bool

	material string
	file     string
}

func (w *FakeWriter) WriteContentPackage(*mxf.ContentPackage) error {
	if w.FailWrite {
		return errors.New("injected write failure")
	}
	w.Frames++
	return nil
}

func (w *FakeWriter) Complete(info mxf.InfaxData, defects []mxf.DefectRecord) error {
	w.Info = info
	w.Defects = defects
	w.Completed = true
	return os.WriteFile(w.Path, make([]byte, w.Frames), 0o644)
}

func (w *FakeWriter) Abort() error {
	w.Aborted = true
	return nil
}

func (w *FakeWriter) MaterialUID() string { return w.material }
func (w *FakeWriter) FileUID() string     { return w.file }

// FakeWriterSet hands out FakeWriters and remembers them by path.
type FakeWriterSet struct {
	mu      sync.Mutex
	Writers []*FakeWriter
	// FailOpen makes the factory reject the next open.
	FailOpen bool
}

// Factory is an mxf.WriterFactory.
func (s *FakeWriterSet) Factory(path string, cfg mxf.WriterConfig) (mxf.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOpen {
		return nil, errors.New("injected writer open failure")
	}
	writer := &FakeWriter{
		Path:     path,
		Cfg:      cfg,
		material: uuid.NewString(),
		file:     uuid.NewString(),
	}
	s.Writers = append(s.Writers, writer)
	return writer, nil
}

// ByName returns the writer opened for the given base filename.
func (s *FakeWriterSet) ByName(name string) *FakeWriter {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, writer := range s.Writers {
		if filepath.Base(writer.Path) == name {
			return writer
		}
	}
	return nil
}

// FakeBrowseEncoder counts browse frames for one item.
type FakeBrowseEncoder struct {
	Path   string
	Frames int64
	Closed bool
}

func (e *FakeBrowseEncoder) WriteFrame(video []byte, audio []int16) error {
	e.Frames++
	return nil
}

func (e *FakeBrowseEncoder) Close() error {
	e.Closed = true
	return nil
}

// FakeBrowseSet hands out browse encoders and remembers them.
type FakeBrowseSet struct {
	mu       sync.Mutex
	Encoders []*FakeBrowseEncoder
}

func (s *FakeBrowseSet) Open(path string) (*FakeBrowseEncoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	encoder := &FakeBrowseEncoder{Path: path}
	s.Encoders = append(s.Encoders, encoder)
	return encoder, nil
}

// FakePSE reports a fixed analysis result for every item.
type FakePSE struct {
	Result   int
	Analyzed []string
}

func (p *FakePSE) Analyze(path string, durationFrames int64) (int, string, error) {
	p.Analyzed = append(p.Analyzed, path)
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".pse.html"
	return p.Result, name, nil
}

// FakeCapture is a scriptable capture.Capture.
type FakeCapture struct {
	mu sync.Mutex

	FailStart bool
	FailStop  bool
	Result    *capture.RecordResult
	General   capture.GeneralStats
	Stats     capture.RecordStats

	Recording bool
	MultiItem bool
	Path      string
	Browse    string
	Aborted   bool
}

// NewFakeCapture returns a capture with a locked signal and an empty
// successful record result.
func NewFakeCapture() *FakeCapture {
	return &FakeCapture{
		General: capture.GeneralStats{SignalPresent: true, SignalLocked: true},
		Result:  &capture.RecordResult{},
	}
}

func (c *FakeCapture) StartRecord(outputPath, browsePath string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailStart || c.Recording {
		return false
	}
	c.Recording = true
	c.MultiItem = false
	c.Path = outputPath
	c.Browse = browsePath
	return true
}

func (c *FakeCapture) StartMultiItemRecord(pageTemplate, browsePath string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailStart || c.Recording {
		return false
	}
	c.Recording = true
	c.MultiItem = true
	c.Path = pageTemplate
	c.Browse = browsePath
	return true
}

func (c *FakeCapture) StopRecord() (*capture.RecordResult, bool) {
	return c.stop(false)
}

func (c *FakeCapture) StopMultiItemRecord() (*capture.RecordResult, bool) {
	return c.stop(true)
}

func (c *FakeCapture) stop(multi bool) (*capture.RecordResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailStop || !c.Recording || c.MultiItem != multi {
		return nil, false
	}
	c.Recording = false
	return c.Result, true
}

func (c *FakeCapture) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Recording
}

func (c *FakeCapture) AbortRecord() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recording = false
	c.Aborted = true
	return true
}

func (c *FakeCapture) GeneralStats() capture.GeneralStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.General
}

func (c *FakeCapture) RecordStats() capture.RecordStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Stats
}

// FakeVTR is a scriptable capture.VTRControl whose transport commands
// change state immediately.
type FakeVTR struct {
	mu sync.Mutex

	StateValue capture.VTRState
	FailPlay   bool
	FailStop   bool
	FailRecord bool
	FailPause  bool

	PlayCalls   int
	StopCalls   int
	RecordCalls int
	PauseCalls  int
}

// NewFakeVTR returns a deck with a threaded tape, stopped.
func NewFakeVTR() *FakeVTR {
	return &FakeVTR{StateValue: capture.VTRStopped}
}

func (v *FakeVTR) State() capture.VTRState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.StateValue
}

// SetState scripts the deck into a given transport state.
func (v *FakeVTR) SetState(state capture.VTRState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.StateValue = state
}

func (v *FakeVTR) Play() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.PlayCalls++
	if v.FailPlay {
		return false
	}
	v.StateValue = capture.VTRPlay
	return true
}

func (v *FakeVTR) Stop() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.StopCalls++
	if v.FailStop {
		return false
	}
	v.StateValue = capture.VTRStopped
	return true
}

func (v *FakeVTR) Record() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.RecordCalls++
	if v.FailRecord {
		return false
	}
	v.StateValue = capture.VTRRecording
	return true
}

func (v *FakeVTR) StandbyOn() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.PauseCalls++
	if v.FailPause {
		return false
	}
	v.StateValue = capture.VTRPaused
	return true
}

func (v *FakeVTR) StandbyOff() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.StateValue = capture.VTRStopped
	return true
}

// FakeReplay is a scriptable capture.ConfidenceReplay.
type FakeReplay struct {
	mu sync.Mutex

	FailStart bool
	Started   []string
	Stopped   int
}

func (r *FakeReplay) Start(filename string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailStart {
		return false
	}
	r.Started = append(r.Started, filename)
	return true
}

func (r *FakeReplay) SetFile(filename string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Started = append(r.Started, filename)
	return true
}

func (r *FakeReplay) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stopped++
	return true
}

// FakeDrive is a scriptable tapedrive.Drive. Tests advance the store by
// setting stats and the completed flag.
type FakeDrive struct {
	mu sync.Mutex

	Tape      tapedrive.TapeState
	FailStore bool

	Files      []string
	Barcode    string
	stats      tapedrive.StoreStats
	completed  bool
	AbortCalls int
	StoreCalls int
}

// NewFakeDrive returns a drive with a ready tape.
func NewFakeDrive() *FakeDrive {
	return &FakeDrive{Tape: tapedrive.TapeReady}
}

func (d *FakeDrive) GeneralStats() tapedrive.GeneralStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return tapedrive.GeneralStats{TapeState: d.Tape}
}

// SetTape scripts the drive's tape readiness.
func (d *FakeDrive) SetTape(state tapedrive.TapeState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Tape = state
}

func (d *FakeDrive) StoreToTape(files []string, barcode string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StoreCalls++
	if d.FailStore {
		return false
	}
	d.Files = append([]string(nil), files...)
	d.Barcode = barcode
	d.stats = tapedrive.StoreStats{State: tapedrive.StoreRunning}
	d.completed = false
	return true
}

func (d *FakeDrive) StoreCompleted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completed
}

func (d *FakeDrive) AbortStore() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AbortCalls++
	d.stats.State = tapedrive.StoreFailed
	d.completed = true
	return true
}

func (d *FakeDrive) StoreStats() tapedrive.StoreStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// AdvanceStore scripts the drive's running offset and current filename.
func (d *FakeDrive) AdvanceStore(offset int, filename string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = tapedrive.StoreStats{Offset: offset, State: tapedrive.StoreRunning, Filename: filename}
}

// FinishStore scripts the store outcome.
func (d *FakeDrive) FinishStore(ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completed = true
	if ok {
		d.stats.State = tapedrive.StoreCompleted
		d.stats.Offset = len(d.Files)
	} else {
		d.stats.State = tapedrive.StoreFailed
	}
}
