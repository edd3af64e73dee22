package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"tapearc/internal/cache"
	"tapearc/internal/config"
	"tapearc/internal/logging"
	"tapearc/internal/notifications"
	"tapearc/internal/recording"
	"tapearc/internal/store"
)

// Deps are the daemon's collaborators. Session is the collaborator set
// handed to every recording session the daemon creates. A nil Notifier
// falls back to the config-driven service.
type Deps struct {
	DB       *store.Store
	Cache    *cache.Cache
	Session  recording.Deps
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Daemon owns the recorder's write-owning cache and the single recording
// session slot, and enforces single-instance execution through a lock file.
type Daemon struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger

	monitor  *captureMonitor
	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	session *recording.Session
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	CaptureDevice  bool
	SessionActive  bool
	SessionID      int64
	SessionState   recording.State
	LockFilePath   string
	CacheDirectory string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.DB == nil || deps.Cache == nil {
		return nil, errors.New("daemon requires config, store, and cache")
	}

	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "tapearcd.lock")
	d := &Daemon{
		cfg:      cfg,
		deps:     deps,
		logger:   logging.NewComponentLogger(deps.Logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.monitor = newCaptureMonitor(cfg, deps.Logger, nil)
	return d, nil
}

// Start acquires the instance lock, reconciles the cache, and begins
// watching the capture device.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tapearc daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.deps.Cache.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start cache: %w", err)
	}
	if err := d.monitor.Start(d.ctx); err != nil {
		d.logger.Warn("capture device monitor unavailable", logging.Args(logging.Error(err))...)
	}

	d.running.Store(true)
	d.logger.Info("tapearc daemon started",
		logging.Args(
			logging.String("lock", d.lockPath),
			logging.String("cache", d.deps.Cache.Directory()),
		)...)
	return nil
}

// Stop shuts the daemon down, aborting any live recording session as
// system-initiated, and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	// Context cancellation reaches the session's control loop, which
	// converts it into a system abort. Wait for it to land.
	if session, ok := d.ActiveSession(); ok {
		<-session.Done()
	}
	d.monitor.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Args(logging.Error(err))...)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("tapearc daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.deps.Cache.Close()
}

// StartSession creates and starts a recording session for the given catalogued
// sources. At most one session runs at a time; a second request fails until
// the current session reaches its end state.
func (d *Daemon) StartSession(sources []store.SourceItem, comments string) (*recording.Session, error) {
	if !d.running.Load() {
		return nil, errors.New("daemon is not running")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		select {
		case <-d.session.Done():
		default:
			return nil, errors.New("a recording session is already active")
		}
	}

	session, err := recording.New(d.cfg, d.deps.Session, sources, comments)
	if err != nil {
		return nil, err
	}
	if err := session.Start(d.ctx); err != nil {
		return nil, err
	}
	d.session = session
	d.notifySession(session, sources)
	d.logger.Info("recording session started",
		logging.Args(
			logging.Int64("session_id", session.SessionID()),
			logging.Int("sources", len(sources)),
		)...)
	return session, nil
}

// notifySession publishes lifecycle notifications for a recording session
// without blocking the daemon. The background context keeps the final
// notification deliverable during daemon shutdown.
func (d *Daemon) notifySession(session *recording.Session, sources []store.SourceItem) {
	spool := sources[0].SpoolNumber
	go func() {
		ctx := context.Background()
		_ = d.deps.Notifier.Publish(ctx, notifications.EventSessionStarted, notifications.Payload{
			"spool": spool,
		})
		<-session.Done()
		snap := session.Status()
		if snap.Result == recording.ResultCompleted {
			_ = d.deps.Notifier.Publish(ctx, notifications.EventSessionCompleted, notifications.Payload{
				"spool": spool,
				"items": strconv.Itoa(len(sources)),
			})
			return
		}
		_ = d.deps.Notifier.Publish(ctx, notifications.EventSessionAborted, notifications.Payload{
			"spool":  spool,
			"reason": snap.Message,
		})
	}()
}

// ActiveSession returns the current recording session, if one exists. The
// session may already have finished; callers inspect its status.
func (d *Daemon) ActiveSession() (*recording.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil, false
	}
	return d.session, true
}

// Status reports daemon runtime information.
func (d *Daemon) Status() Status {
	status := Status{
		Running:        d.running.Load(),
		CaptureDevice:  d.monitor.Available(),
		LockFilePath:   d.lockPath,
		CacheDirectory: d.deps.Cache.Directory(),
	}
	if session, ok := d.ActiveSession(); ok {
		snap := session.Status()
		status.SessionActive = snap.State != recording.StateEnd
		status.SessionID = session.SessionID()
		status.SessionState = snap.State
	}
	return status
}
