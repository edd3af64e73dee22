package chunking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tapearc/internal/cache"
	"tapearc/internal/diskspace"
	"tapearc/internal/logging"
	"tapearc/internal/mxf"
	"tapearc/internal/sidecar"
	"tapearc/internal/store"
	"tapearc/internal/translock"
)

// Status is the worker's overall outcome.
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// throttleCheckFrames is how often the tape-transfer lock is probed.
const throttleCheckFrames = 25

// defaultThrottleSleep is how long chunking yields per probe while a tape
// transfer holds the lock.
const defaultThrottleSleep = 200 * time.Millisecond

// PlanItem is one segment of the capture, in stream order. Junk segments
// are skipped without output; real segments get a destination record whose
// filenames name the outputs.
type PlanItem struct {
	IsJunk      bool
	Duration    int64
	Destination *store.DestinationRow
	Infax       mxf.InfaxData
}

// BrowseEncoder consumes converted browse frames for one item.
type BrowseEncoder interface {
	WriteFrame(video []byte, audio []int16) error
	Close() error
}

// BrowseEncoderFactory opens a browse encoder writing to path.
type BrowseEncoderFactory func(path string) (BrowseEncoder, error)

// PSEAnalyzer produces a photosensitive-epilepsy report for one finished
// item file.
type PSEAnalyzer interface {
	// Analyze returns the pass/fail result and the report filename
	// relative to the PSE directory.
	Analyze(path string, durationFrames int64) (result int, reportName string, err error)
}

// Config carries the per-run parameters.
type Config struct {
	Items       []PlanItem
	TotalFrames int64
	Writer      mxf.WriterConfig
	Browse      bool
	PSE         bool
	// DiskCheckFrames is the interval between free-space checks, one page
	// file's worth of frames.
	DiskCheckFrames int64
	MinDiskBytes    uint64
	ThrottleSleep   time.Duration
}

// Deps are the worker's collaborators. Held and Free default to the real
// lock probe and statfs.
type Deps struct {
	Reader        mxf.Reader
	WriterFactory mxf.WriterFactory
	BrowseFactory BrowseEncoderFactory
	PSE           PSEAnalyzer
	Cache         *cache.Cache
	Session       *store.SessionRow
	Logger        *slog.Logger
	// OnItemChunked fires after each real item's outputs are finished,
	// with the item's index in the plan and its final filename.
	OnItemChunked func(index int, filename string)
	Held          func(path string) bool
	Free          func(path string) (uint64, error)
}

// ErrStopped is the failure recorded when a run is cut short by Stop.
var ErrStopped = errors.New("chunking stopped")

// Worker segments one captured stream into per-item output files,
// redistributing frame-indexed defect records to the items they fall in.
type Worker struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	status Status
	err    error
}

// New builds a worker. Start launches it.
func New(cfg Config, deps Deps) *Worker {
	if cfg.ThrottleSleep <= 0 {
		cfg.ThrottleSleep = defaultThrottleSleep
	}
	if deps.Held == nil {
		deps.Held = translock.Held
	}
	if deps.Free == nil {
		deps.Free = diskspace.Free
	}
	return &Worker{
		cfg:    cfg,
		deps:   deps,
		logger: logging.NewComponentLogger(deps.Logger, "chunking"),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		status: StatusRunning,
	}
}

// Start runs the worker on its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		err := w.run(ctx)
		w.mu.Lock()
		if err != nil {
			w.status = StatusFailed
			w.err = err
		} else {
			w.status = StatusCompleted
		}
		w.mu.Unlock()
		switch {
		case errors.Is(err, ErrStopped):
			w.logger.Info("chunking stopped before completion")
		case err != nil:
			w.logger.Error("chunking failed", logging.Args(logging.Error(err))...)
		default:
			w.logger.Info("chunking completed")
		}
	}()
}

// Stop asks a running worker to halt at the next frame boundary. Safe to
// call more than once; the caller then waits on Done before touching any
// files the worker may still hold open.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Done is closed when the worker exits.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Result returns the final status and error. Valid once Done is closed.
func (w *Worker) Result() (Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, w.err
}

// itemOutputs bundles the open handles for the item currently being
// written, so the failure path can tear them down in one place.
type itemOutputs struct {
	writer   mxf.Writer
	browse   BrowseEncoder
	timecode *sidecar.TimecodeFile
}

func (o *itemOutputs) discard() {
	if o.writer != nil {
		_ = o.writer.Abort()
		o.writer = nil
	}
	if o.browse != nil {
		_ = o.browse.Close()
		o.browse = nil
	}
	if o.timecode != nil {
		_ = o.timecode.Close()
		o.timecode = nil
	}
}

func (w *Worker) run(ctx context.Context) (err error) {
	var open itemOutputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chunking panic: %v", r)
		}
		if err != nil {
			open.discard()
		}
	}()

	reader := w.deps.Reader
	if !reader.IsComplete() {
		return errors.New("source capture is incomplete")
	}

	pse := newDefectCursor(reader.PSEFailures())
	vtr := newDefectCursor(reader.VTRErrors())
	drop := newDefectCursor(reader.DigiBetaDropouts())

	var inputFrame int64
	nextDiskCheck := w.cfg.DiskCheckFrames

	for index, item := range w.cfg.Items {
		if err := w.interrupted(ctx); err != nil {
			return err
		}
		if item.IsJunk {
			if err := reader.SkipFrames(item.Duration); err != nil {
				return fmt.Errorf("skip junk item %d: %w", index, err)
			}
			inputFrame += item.Duration
			// Defects inside a junked span can never be attributed to a
			// retained item.
			pse.discardBefore(inputFrame)
			vtr.discardBefore(inputFrame)
			drop.discardBefore(inputFrame)
			continue
		}

		dest := item.Destination
		if err := w.deps.Cache.RegisterCreatingItem(ctx, dest, w.deps.Session, false); err != nil {
			return fmt.Errorf("register item %s: %w", dest.Filename, err)
		}
		outputPath := filepath.Join(w.deps.Cache.StagingDir(), dest.Filename)
		writer, err := w.deps.WriterFactory(outputPath, w.cfg.Writer)
		if err != nil {
			return fmt.Errorf("open writer for %s: %w", dest.Filename, err)
		}
		open.writer = writer

		var browsePath string
		if w.cfg.Browse && w.deps.BrowseFactory != nil {
			browsePath = filepath.Join(w.deps.Cache.BrowseDirectory(), dest.BrowseFilename)
			encoder, err := w.deps.BrowseFactory(browsePath)
			if err != nil {
				return fmt.Errorf("open browse encoder for %s: %w", dest.BrowseFilename, err)
			}
			open.browse = encoder
			tc, err := sidecar.CreateTimecode(replaceExt(browsePath, ".tc"))
			if err != nil {
				return err
			}
			open.timecode = tc
			if err := sidecar.WriteInfo(replaceExt(browsePath, ".txt"), item.Infax); err != nil {
				return err
			}
		}

		var defects []mxf.DefectRecord
		for itemFrame := int64(0); itemFrame < item.Duration; itemFrame++ {
			if err := w.interrupted(ctx); err != nil {
				return err
			}
			if inputFrame%throttleCheckFrames == 0 && w.deps.Held(w.deps.Cache.TransferLockPath()) {
				// A tape transfer is running; yield I/O bandwidth.
				select {
				case <-w.stop:
					return ErrStopped
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(w.cfg.ThrottleSleep):
				}
			}
			if w.cfg.DiskCheckFrames > 0 && inputFrame >= nextDiskCheck {
				nextDiskCheck += w.cfg.DiskCheckFrames
				free, err := w.deps.Free(w.deps.Cache.Directory())
				if err == nil && free < w.cfg.MinDiskBytes {
					if err := reader.ForwardTruncate(); err != nil {
						return fmt.Errorf("truncate consumed pages: %w", err)
					}
				}
			}

			cp, err := reader.NextFrame()
			if err != nil {
				return fmt.Errorf("read frame %d: %w", inputFrame, err)
			}

			defects = append(defects, pse.takeAt(inputFrame, itemFrame)...)
			defects = append(defects, vtr.takeAt(inputFrame, itemFrame)...)
			defects = append(defects, drop.takeAt(inputFrame, itemFrame)...)

			if err := writer.WriteContentPackage(cp); err != nil {
				return fmt.Errorf("write frame %d of %s: %w", itemFrame, dest.Filename, err)
			}
			if open.browse != nil {
				video := browseVideo(cp)
				audio := browseAudio(cp.Audio)
				if err := open.browse.WriteFrame(video, audio); err != nil {
					return fmt.Errorf("browse frame %d of %s: %w", itemFrame, dest.BrowseFilename, err)
				}
				if err := open.timecode.Append(mxf.TimecodeFromFrames(itemFrame), cp.VITC, cp.LTC); err != nil {
					return err
				}
			}
			inputFrame++
		}

		infax := item.Infax
		infax.DurationFrames = item.Duration
		if err := writer.Complete(infax, defects); err != nil {
			return fmt.Errorf("complete %s: %w", dest.Filename, err)
		}
		dest.MaterialUID = writer.MaterialUID()
		dest.FileUID = writer.FileUID()
		open.writer = nil

		if open.browse != nil {
			if err := open.browse.Close(); err != nil {
				return fmt.Errorf("close browse %s: %w", dest.BrowseFilename, err)
			}
			open.browse = nil
			if err := open.timecode.Close(); err != nil {
				return err
			}
			open.timecode = nil
			if err := sidecar.WriteInfo(replaceExt(browsePath, ".txt"), infax); err != nil {
				return err
			}
		}

		if w.cfg.PSE && w.deps.PSE != nil {
			result, reportName, err := w.deps.PSE.Analyze(outputPath, item.Duration)
			if err != nil {
				return fmt.Errorf("pse analysis for %s: %w", dest.Filename, err)
			}
			dest.PSEResult = result
			dest.PSEFilename = reportName
		}

		dest.Duration = item.Duration
		if _, size, statErr := statSize(outputPath); statErr == nil {
			dest.Size = size
		}
		if err := w.deps.Cache.UpdateCreatingItem(ctx, dest, w.deps.Session); err != nil {
			return fmt.Errorf("update reservation %s: %w", dest.Filename, err)
		}

		if w.deps.OnItemChunked != nil {
			w.deps.OnItemChunked(index, dest.Filename)
		}
	}

	if inputFrame != w.cfg.TotalFrames {
		return fmt.Errorf("consumed %d frames but the capture holds %d", inputFrame, w.cfg.TotalFrames)
	}
	return nil
}

// interrupted reports whether the run should halt, either by Stop or by the
// surrounding context.
func (w *Worker) interrupted(ctx context.Context) error {
	select {
	case <-w.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// defectCursor walks one sorted defect list exactly once.
type defectCursor struct {
	records []mxf.DefectRecord
	next    int
}

func newDefectCursor(records []mxf.DefectRecord) *defectCursor {
	return &defectCursor{records: records}
}

// discardBefore advances past every record positioned before limit.
func (c *defectCursor) discardBefore(limit int64) {
	for c.next < len(c.records) && c.records[c.next].Position < limit {
		c.next++
	}
}

// takeAt returns the records at exactly inputFrame, rewritten to the
// item-relative position.
func (c *defectCursor) takeAt(inputFrame, itemFrame int64) []mxf.DefectRecord {
	var taken []mxf.DefectRecord
	for c.next < len(c.records) && c.records[c.next].Position == inputFrame {
		record := c.records[c.next]
		record.Position = itemFrame
		taken = append(taken, record)
		c.next++
	}
	return taken
}

func replaceExt(path, ext string) string {
	old := filepath.Ext(path)
	return strings.TrimSuffix(path, old) + ext
}
