package tapedrive

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"tapearc/internal/logging"
)

// LTFSDrive writes batches onto a mounted LTFS volume. The mount point
// stands in for the tape: a present, writable directory means a ready
// tape, and a store is a sequential copy of each file onto the mount under
// its sequence-numbered tape filename.
type LTFSDrive struct {
	mount  string
	logger *slog.Logger

	mu      sync.Mutex
	stats   StoreStats
	done    bool
	running bool
	abort   chan struct{}
}

// NewLTFSDrive builds a drive over the given LTFS mount point.
func NewLTFSDrive(mount string, logger *slog.Logger) *LTFSDrive {
	return &LTFSDrive{
		mount:  mount,
		logger: logging.NewComponentLogger(logger, "ltfs-drive"),
	}
}

func (d *LTFSDrive) GeneralStats() GeneralStats {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if running {
		return GeneralStats{TapeState: TapeBusy}
	}
	info, err := os.Stat(d.mount)
	if err != nil || !info.IsDir() {
		return GeneralStats{TapeState: TapeNotPresent}
	}
	return GeneralStats{TapeState: TapeReady}
}

// StoreToTape starts copying the files onto the mount in order. Tape
// filenames follow the batch convention: barcode plus two-digit sequence.
func (d *LTFSDrive) StoreToTape(files []string, barcode string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running || len(files) == 0 {
		return false
	}
	if info, err := os.Stat(d.mount); err != nil || !info.IsDir() {
		return false
	}

	d.stats = StoreStats{State: StoreRunning}
	d.done = false
	d.running = true
	d.abort = make(chan struct{})
	go d.storeLoop(append([]string(nil), files...), barcode, d.abort)
	return true
}

func (d *LTFSDrive) StoreCompleted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *LTFSDrive) AbortStore() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || d.abort == nil {
		return false
	}
	select {
	case <-d.abort:
	default:
		close(d.abort)
	}
	return true
}

func (d *LTFSDrive) StoreStats() StoreStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *LTFSDrive) storeLoop(files []string, barcode string, abort <-chan struct{}) {
	for i, src := range files {
		tapeName := fmt.Sprintf("%s%02d.mxf", barcode, i+1)
		d.setCurrent(i, tapeName)

		if err := d.copyFile(src, filepath.Join(d.mount, tapeName), abort); err != nil {
			d.logger.Error("store to tape failed",
				logging.Args(
					logging.String("source", src),
					logging.String("tape_filename", tapeName),
					logging.Error(err),
				)...)
			d.finish(StoreFailed)
			return
		}
		d.logger.Info("file stored to tape",
			logging.Args(
				logging.String("tape_filename", tapeName),
				logging.Int("sequence", i+1),
			)...)
	}
	d.setCurrent(len(files), "")
	d.finish(StoreCompleted)
}

// copyFile streams src onto the mount, honouring aborts between chunks. A
// partial file left behind by an abort is removed; LTFS reclaims the space
// on the next reformat.
func (d *LTFSDrive) copyFile(src, dst string, abort <-chan struct{}) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create tape file: %w", err)
	}

	buf := make([]byte, 1<<20)
	for {
		select {
		case <-abort:
			out.Close()
			_ = os.Remove(dst)
			return fmt.Errorf("store aborted")
		default:
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				out.Close()
				_ = os.Remove(dst)
				return fmt.Errorf("write tape file: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			_ = os.Remove(dst)
			return fmt.Errorf("read source: %w", readErr)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close tape file: %w", err)
	}
	return nil
}

func (d *LTFSDrive) setCurrent(offset int, filename string) {
	d.mu.Lock()
	d.stats.Offset = offset
	d.stats.Filename = filename
	d.mu.Unlock()
}

func (d *LTFSDrive) finish(state StoreState) {
	d.mu.Lock()
	d.stats.State = state
	d.done = true
	d.running = false
	d.mu.Unlock()
}
