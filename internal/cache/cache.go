package cache

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"tapearc/internal/config"
	"tapearc/internal/diskspace"
	"tapearc/internal/fsys"
	"tapearc/internal/logging"
	"tapearc/internal/store"
	"tapearc/internal/translock"
)

// StagingDirName is the subdirectory holding in-flight reservations.
const StagingDirName = "creating"

// Item is one finalized artifact in the cache.
type Item struct {
	Row *store.CacheItemRow
}

// CreatingItem is a reservation for a file still being written. Temp
// reservations (page files for multi-item captures) are excluded from
// content listings.
type CreatingItem struct {
	Row    *store.CacheItemRow
	IsTemp bool
}

// Status is the polling snapshot clients use to detect change without
// transferring item lists.
type Status struct {
	ChangeCount uint64
	NumItems    int
	TotalSize   int64
}

// Options configures a Cache instance.
type Options struct {
	Directory       string
	BrowseDirectory string
	PSEDirectory    string
	RecorderName    string
	// WriteOwner marks the one instance per cache directory allowed to
	// create files; a read-only view never touches the staging
	// subdirectory and never corrects the persistence store.
	WriteOwner bool
	// DisableWatch skips the directory watch, for callers that only need
	// a one-shot reconciled view.
	DisableWatch bool

	WatchReadyTimeout time.Duration
	EventRetryInitial time.Duration
	EventRetryDelay   time.Duration
	EventRetryCount   int
}

// OptionsFromConfig derives cache options for the write-owning recorder.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Directory:         cfg.Paths.CacheDir,
		BrowseDirectory:   cfg.Paths.BrowseDir,
		PSEDirectory:      cfg.Paths.PSEDir,
		RecorderName:      cfg.Recorder.Name,
		WriteOwner:        true,
		WatchReadyTimeout: time.Duration(cfg.Workflow.WatchReadyTimeout) * time.Second,
		EventRetryInitial: time.Duration(cfg.Workflow.EventRetryDelayMS) * time.Millisecond,
		EventRetryDelay:   time.Duration(cfg.Workflow.EventRetryDelayMS) * time.Millisecond,
		EventRetryCount:   cfg.Workflow.EventRetryCount,
	}
}

// Cache is the authoritative registry of on-disk artifacts, reconciling
// persistence rows, directory contents, and live filesystem events into one
// view. All mutating operations are serialized by a single items mutex; the
// status snapshot has its own mutex so pollers never wait on long item
// operations.
type Cache struct {
	opts   Options
	fs     fsys.FileStore
	db     *store.Store
	logger *slog.Logger

	mu       sync.Mutex
	row      *store.CacheRow
	items    []*Item
	creating []*CreatingItem

	statusMu sync.Mutex
	status   Status

	watcher *fsys.DirWatcher
}

// New builds a Cache. Start must be called before any other method.
func New(opts Options, fs fsys.FileStore, db *store.Store, logger *slog.Logger) *Cache {
	if opts.WatchReadyTimeout <= 0 {
		opts.WatchReadyTimeout = 10 * time.Second
	}
	if opts.EventRetryCount <= 0 {
		opts.EventRetryCount = 10
	}
	if opts.EventRetryInitial <= 0 {
		opts.EventRetryInitial = 500 * time.Millisecond
	}
	if opts.EventRetryDelay <= 0 {
		opts.EventRetryDelay = 500 * time.Millisecond
	}
	return &Cache{
		opts:   opts,
		fs:     fs,
		db:     db,
		logger: logging.NewComponentLogger(logger, "cache"),
	}
}

// Start registers the directory watch and then reconciles the cache against
// disk and the persistence store. The watch goes up first so a file created
// mid-reconciliation is still delivered as an event; the items mutex is held
// across both steps, so delivery blocks until reconciliation completes.
func (c *Cache) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The watch needs the directory in place before reconciliation runs.
	if c.opts.WriteOwner {
		if err := c.fs.MkdirAll(c.StagingDir()); err != nil {
			return err
		}
	}

	if !c.opts.DisableWatch {
		watcher := fsys.NewDirWatcher(c.opts.Directory, fsys.WatchCallbacks{
			OnCreate:     c.handleCreated,
			OnRemove:     c.handleRemoved,
			OnRenameFrom: c.handleRemoved,
			OnDirRemoved: c.handleDirRemoved,
		}, c.logger)
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("start cache watch: %w", err)
		}
		if err := watcher.WaitReady(c.opts.WatchReadyTimeout); err != nil {
			_ = watcher.Close()
			return err
		}
		c.watcher = watcher
	}

	if _, err := c.reconcileLocked(ctx); err != nil {
		if c.watcher != nil {
			_ = c.watcher.Close()
			c.watcher = nil
		}
		return err
	}
	return nil
}

// Close stops the directory watch.
func (c *Cache) Close() error {
	c.mu.Lock()
	watcher := c.watcher
	c.watcher = nil
	c.mu.Unlock()
	if watcher == nil {
		return nil
	}
	return watcher.Close()
}

// Directory returns the main cache directory.
func (c *Cache) Directory() string {
	return c.opts.Directory
}

// BrowseDirectory returns the browse-copy root.
func (c *Cache) BrowseDirectory() string {
	return c.opts.BrowseDirectory
}

// PSEDirectory returns the PSE-report root.
func (c *Cache) PSEDirectory() string {
	return c.opts.PSEDirectory
}

// StagingDir returns the creating subdirectory path.
func (c *Cache) StagingDir() string {
	return filepath.Join(c.opts.Directory, StagingDirName)
}

// TransferLockPath returns the advisory tape-transfer lock file location
// inside this cache directory.
func (c *Cache) TransferLockPath() string {
	return filepath.Join(c.opts.Directory, translock.LockFileName)
}

// Status returns the change-detection snapshot.
func (c *Cache) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// DiskSpace returns the free bytes on the cache filesystem.
func (c *Cache) DiskSpace() (uint64, error) {
	return diskspace.Free(c.opts.Directory)
}

// statusGuard bumps the change counter and refreshes the cached item
// count/size exactly once on scope exit, unless disarmed. Mutating
// operations arm one guard up front instead of signalling at each internal
// mutation point.
type statusGuard struct {
	c     *Cache
	armed bool
}

func (c *Cache) deferStatusUpdate() *statusGuard {
	return &statusGuard{c: c, armed: true}
}

func (g *statusGuard) disarm() { g.armed = false }

// run must be called with the items mutex held.
func (g *statusGuard) run() {
	if !g.armed {
		return
	}
	g.armed = false
	c := g.c
	numItems := len(c.items)
	totalSize := int64(0)
	for _, item := range c.items {
		totalSize += item.Row.Size
	}
	for _, creating := range c.creating {
		if creating.IsTemp {
			continue
		}
		numItems++
		totalSize += creating.Row.Size
	}
	c.statusMu.Lock()
	c.status.ChangeCount++
	c.status.NumItems = numItems
	c.status.TotalSize = totalSize
	c.statusMu.Unlock()
}
