package fsys

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"tapearc/internal/logging"
)

// ErrWatchNotReady indicates the watcher did not report ready within the
// allowed startup window.
var ErrWatchNotReady = errors.New("directory watch not ready")

// WatchCallbacks receives directory change events. Callbacks run on the
// watcher's delivery goroutine; implementations must be safe to call
// concurrently with any other goroutine touching the same state. Moves into
// the watched directory surface as OnCreate; moves out surface as
// OnRenameFrom.
type WatchCallbacks struct {
	OnCreate     func(name string)
	OnRemove     func(name string)
	OnRenameFrom func(name string)
	OnDirRemoved func()
}

// DirWatcher watches one directory for file creation, removal, and moves.
type DirWatcher struct {
	dir       string
	callbacks WatchCallbacks
	logger    *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	ready   chan struct{}
	done    chan struct{}
}

// NewDirWatcher builds a watcher for dir. Start must be called before
// events are delivered.
func NewDirWatcher(dir string, callbacks WatchCallbacks, logger *slog.Logger) *DirWatcher {
	return &DirWatcher{
		dir:       dir,
		callbacks: callbacks,
		logger:    logging.NewComponentLogger(logger, "watch"),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start registers the watch and begins delivering events. Events observed
// after Start returns are never lost, though the receiving callbacks may
// block them behind whatever lock the receiver holds.
func (w *DirWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return errors.New("watcher already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.watcher = watcher
	go w.run(watcher)
	return nil
}

// WaitReady blocks until the delivery goroutine is running, bounded by
// timeout. The caller must treat a timeout as fatal.
func (w *DirWatcher) WaitReady(timeout time.Duration) error {
	select {
	case <-w.ready:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w after %s", ErrWatchNotReady, timeout)
	}
}

// Close stops delivery and releases the underlying watch.
func (w *DirWatcher) Close() error {
	w.mu.Lock()
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()
	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-w.done
	return err
}

func (w *DirWatcher) run(watcher *fsnotify.Watcher) {
	close(w.ready)
	defer close(w.done)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.dispatch(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.Args(logging.Error(err))...)
		}
	}
}

func (w *DirWatcher) dispatch(event fsnotify.Event) {
	if event.Name == w.dir {
		if event.Op.Has(fsnotify.Remove) && w.callbacks.OnDirRemoved != nil {
			w.callbacks.OnDirRemoved()
		}
		return
	}
	name := filepath.Base(event.Name)
	switch {
	case event.Op.Has(fsnotify.Create):
		if w.callbacks.OnCreate != nil {
			w.callbacks.OnCreate(name)
		}
	case event.Op.Has(fsnotify.Remove):
		if w.callbacks.OnRemove != nil {
			w.callbacks.OnRemove(name)
		}
	case event.Op.Has(fsnotify.Rename):
		if w.callbacks.OnRenameFrom != nil {
			w.callbacks.OnRenameFrom(name)
		}
	}
}
