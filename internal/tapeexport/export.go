package tapeexport

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"tapearc/internal/cache"
	"tapearc/internal/config"
	"tapearc/internal/logging"
	"tapearc/internal/store"
	"tapearc/internal/tapedrive"
	"tapearc/internal/translock"
)

// State is the export session's lifecycle position.
type State int

const (
	StateSelectingFiles State = iota
	StateWaitingForTapeReady
	StateTransferring
	StateCompleted
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateSelectingFiles:
		return "selecting files"
	case StateWaitingForTapeReady:
		return "waiting for tape"
	case StateTransferring:
		return "transferring"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAborted
}

// FileStatus is one batch entry's polled progress.
type FileStatus struct {
	Sequence     int
	TapeFilename string
	Status       store.TransferStatus
}

// Snapshot is the polled status surface.
type Snapshot struct {
	State   State
	Message string
	Files   []FileStatus
}

// Deps are the session's collaborators.
type Deps struct {
	Cache  *cache.Cache
	DB     *store.Store
	Drive  tapedrive.Drive
	Logger *slog.Logger
}

// Session drives one export batch to tape on a single control goroutine.
// Automatic sessions keep re-selecting until enough completed backlog
// accumulates; manual sessions carry a fixed operator-chosen batch.
type Session struct {
	cfg     *config.Config
	deps    Deps
	logger  *slog.Logger
	barcode string
	auto    bool
	// manualIDs is the operator's explicit destination-id list; empty for
	// automatic sessions.
	manualIDs []int64

	row   *store.LTOSessionRow
	batch []*store.LTOFileRow
	lock  *translock.TransferLock

	tick time.Duration

	ctlMu sync.Mutex
	req   struct {
		abort          bool
		abortInitiator store.AbortInitiator
		abortReason    string
	}

	statusMu sync.Mutex
	state    State
	message  string
	files    []FileStatus

	done chan struct{}
}

// NewAuto builds a session that drains the oldest completed backlog under
// the configured caps.
func NewAuto(cfg *config.Config, deps Deps, barcode string) *Session {
	return newSession(cfg, deps, barcode, true, nil)
}

// NewManual builds a session for an explicit destination-id list.
func NewManual(cfg *config.Config, deps Deps, barcode string, ids []int64) *Session {
	return newSession(cfg, deps, barcode, false, ids)
}

func newSession(cfg *config.Config, deps Deps, barcode string, auto bool, ids []int64) *Session {
	return &Session{
		cfg:       cfg,
		deps:      deps,
		logger:    logging.NewComponentLogger(deps.Logger, "tapeexport"),
		barcode:   barcode,
		auto:      auto,
		manualIDs: ids,
		tick:      100 * time.Millisecond,
		state:     StateSelectingFiles,
		done:      make(chan struct{}),
	}
}

// Start persists the session row, validates manual selection up front, and
// launches the control goroutine. Manual selection violations fail the
// start outright with nothing persisted beyond the aborted session row.
func (s *Session) Start(ctx context.Context) error {
	row, err := s.deps.DB.CreateLTOSession(ctx, s.cfg.Recorder.Name, s.barcode)
	if err != nil {
		return fmt.Errorf("create export session: %w", err)
	}
	s.row = row
	s.lock = translock.New(s.deps.Cache.TransferLockPath())

	if !s.auto {
		batch, err := s.selectManual()
		if err != nil {
			if abortErr := s.deps.DB.AbortLTOSession(ctx, row.ID, store.AbortBySystem, err.Error()); abortErr != nil {
				s.logger.Warn("mark rejected session aborted",
					logging.Args(logging.Error(abortErr))...)
			}
			return err
		}
		s.batch = batch
		s.setState(StateWaitingForTapeReady)
		s.publishFiles()
	}

	go s.run(ctx)
	return nil
}

// Done is closed when the control loop exits.
func (s *Session) Done() <-chan struct{} { return s.done }

// SessionID returns the persistence id, valid after Start.
func (s *Session) SessionID() int64 { return s.row.ID }

// Status returns the polled snapshot.
func (s *Session) Status() Snapshot {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	files := make([]FileStatus, len(s.files))
	copy(files, s.files)
	return Snapshot{State: s.state, Message: s.message, Files: files}
}

// Abort requests an abort. The call returns immediately; an in-flight tape
// operation cannot be interrupted mid-write, so the abort lands at the
// next tick.
func (s *Session) Abort(fromUser bool, reason string) {
	initiator := store.AbortBySystem
	if fromUser {
		initiator = store.AbortByUser
	}
	s.ctlMu.Lock()
	s.req.abort = true
	s.req.abortInitiator = initiator
	s.req.abortReason = reason
	s.ctlMu.Unlock()
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("export loop panic",
				logging.Args(logging.Any("panic", r))...)
			func() {
				defer func() { recover() }()
				s.doAbort(context.Background(), store.AbortBySystem, fmt.Sprintf("internal error: %v", r))
			}()
		}
	}()

	for !s.currentState().terminal() {
		select {
		case <-ctx.Done():
			s.doAbort(context.Background(), store.AbortBySystem, "shutting down")
			return
		case <-time.After(s.tick):
		}

		if initiator, reason, ok := s.takeAbort(); ok {
			s.doAbort(ctx, initiator, reason)
			return
		}

		switch s.currentState() {
		case StateSelectingFiles:
			s.trySelect()
		case StateWaitingForTapeReady:
			s.tryStartTransfer(ctx)
		case StateTransferring:
			s.pollTransfer(ctx)
		}
	}
}

func (s *Session) takeAbort() (store.AbortInitiator, string, bool) {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	if !s.req.abort {
		return "", "", false
	}
	s.req.abort = false
	return s.req.abortInitiator, s.req.abortReason, true
}

// trySelect greedily accumulates the oldest completed backlog under the
// size and count caps. A candidate that would breach the size cap is
// skipped but the scan continues, so smaller later entries still fit. The
// batch is only accepted once it meets the minimum size.
func (s *Session) trySelect() {
	candidates := s.exportCandidates()
	maxBytes := s.cfg.MaxBatchBytes()
	minBytes := s.cfg.MinBatchBytes()
	maxFiles := s.cfg.Export.MaxFiles

	var picked []cache.ContentEntry
	var total int64
	for _, entry := range candidates {
		if maxFiles > 0 && len(picked) >= maxFiles {
			break
		}
		if total+entry.Size >= maxBytes {
			continue
		}
		picked = append(picked, entry)
		total += entry.Size
	}
	if len(picked) == 0 || total < minBytes {
		s.setMessage("waiting for enough completed backlog")
		return
	}

	s.batch = s.synthesize(picked)
	s.publishFiles()
	s.setMessage("")
	s.setState(StateWaitingForTapeReady)
	s.logger.Info("batch selected",
		logging.Args(
			logging.Int("files", len(picked)),
			logging.Int64("bytes", total),
		)...)
}

// selectManual validates the operator's explicit id list strictly: every
// id must resolve to a completed cache entry, and the total must be
// strictly between zero and the size cap.
func (s *Session) selectManual() ([]*store.LTOFileRow, error) {
	if len(s.manualIDs) == 0 {
		return nil, fmt.Errorf("tapeexport: empty selection")
	}
	if !s.deps.Cache.ItemsAreKnown(s.manualIDs) {
		return nil, fmt.Errorf("tapeexport: selection includes unknown items")
	}

	byID := make(map[int64]cache.ContentEntry)
	for _, entry := range s.exportCandidates() {
		byID[entry.DestinationID] = entry
	}
	var picked []cache.ContentEntry
	var total int64
	for _, id := range s.manualIDs {
		entry, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("tapeexport: item %d is not a completed cache entry", id)
		}
		picked = append(picked, entry)
		total += entry.Size
	}
	if total <= 0 {
		return nil, fmt.Errorf("tapeexport: selection is empty")
	}
	if total >= s.cfg.MaxBatchBytes() {
		return nil, fmt.Errorf("tapeexport: selection of %d bytes exceeds the batch cap", total)
	}
	return s.synthesize(picked), nil
}

// exportCandidates returns completed, finalized cache entries oldest
// first, the reverse of the cache's own display order: export drains the
// oldest backlog.
func (s *Session) exportCandidates() []cache.ContentEntry {
	contents := s.deps.Cache.GetContents()
	var out []cache.ContentEntry
	for i := len(contents) - 1; i >= 0; i-- {
		entry := contents[i]
		if entry.Creating || entry.SessionStatus != store.SessionCompleted {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// synthesize builds the numbered tape batch, sorted ascending by session
// creation time then item number so tape order is deterministic.
func (s *Session) synthesize(picked []cache.ContentEntry) []*store.LTOFileRow {
	sort.SliceStable(picked, func(i, j int) bool {
		if !picked[i].SessionCreatedAt.Equal(picked[j].SessionCreatedAt) {
			return picked[i].SessionCreatedAt.Before(picked[j].SessionCreatedAt)
		}
		return picked[i].Source.ItemNumber < picked[j].Source.ItemNumber
	})
	rows := make([]*store.LTOFileRow, len(picked))
	for i, entry := range picked {
		rows[i] = &store.LTOFileRow{
			Sequence:      i + 1,
			TapeFilename:  fmt.Sprintf("%s%02d.mxf", s.barcode, i+1),
			CacheFilename: entry.Filename,
			Status:        store.TransferNotStarted,
			Size:          entry.Size,
			Duration:      entry.Duration,
			IngestFormat:  entry.IngestFormat,
			Source:        entry.Source,
		}
	}
	return rows
}

// tryStartTransfer waits for the drive, re-verifies the batch against the
// cache (files can vanish between selection and tape-ready), persists the
// batch, and issues the store command under the advisory transfer lock.
func (s *Session) tryStartTransfer(ctx context.Context) {
	if s.deps.Drive.GeneralStats().TapeState != tapedrive.TapeReady {
		s.setMessage("waiting for tape")
		return
	}

	for _, file := range s.batch {
		if s.deps.Cache.ItemExists(file.CacheFilename) {
			continue
		}
		if s.auto {
			s.logger.Warn("selected file vanished, re-selecting",
				logging.Args(logging.String("filename", file.CacheFilename))...)
			s.batch = nil
			s.publishFiles()
			s.setState(StateSelectingFiles)
		} else {
			s.doAbort(ctx, store.AbortBySystem,
				fmt.Sprintf("selected file %s no longer in cache", file.CacheFilename))
		}
		return
	}

	if err := s.deps.DB.ReplaceLTOFiles(ctx, s.row.ID, s.batch); err != nil {
		s.doAbort(ctx, store.AbortBySystem, "persist batch: "+err.Error())
		return
	}
	if err := s.lock.Acquire(); err != nil {
		s.setMessage("transfer lock held elsewhere")
		return
	}

	paths := make([]string, len(s.batch))
	for i, file := range s.batch {
		paths[i] = filepath.Join(s.deps.Cache.Directory(), file.CacheFilename)
	}
	if !s.deps.Drive.StoreToTape(paths, s.barcode) {
		s.releaseLock()
		s.doAbort(ctx, store.AbortBySystem, "drive rejected store command")
		return
	}
	s.setMessage("")
	s.setState(StateTransferring)
	s.logger.Info("transfer started",
		logging.Args(
			logging.String("barcode", s.barcode),
			logging.Int("files", len(paths)),
		)...)
}

// pollTransfer translates the drive's single running offset into per-file
// status: every file before the offset is completed regardless of whether
// its own status ever reached started.
func (s *Session) pollTransfer(ctx context.Context) {
	stats := s.deps.Drive.StoreStats()

	for i, file := range s.batch {
		var want store.TransferStatus
		switch {
		case i < stats.Offset:
			want = store.TransferCompleted
		case i == stats.Offset && stats.State == tapedrive.StoreRunning:
			want = store.TransferStarted
		default:
			continue
		}
		s.advanceFile(ctx, file, want)
	}

	if !s.deps.Drive.StoreCompleted() {
		return
	}

	switch stats.State {
	case tapedrive.StoreCompleted:
		for _, file := range s.batch {
			s.advanceFile(ctx, file, store.TransferCompleted)
		}
		s.finishTransfer(ctx)
	default:
		if stats.Offset < len(s.batch) {
			s.advanceFile(ctx, s.batch[stats.Offset], store.TransferFailed)
		}
		s.releaseLock()
		if err := s.deps.DB.AbortLTOSession(ctx, s.row.ID, store.AbortBySystem, "drive reported store failure"); err != nil {
			s.logger.Warn("mark session aborted", logging.Args(logging.Error(err))...)
		}
		s.setMessage("drive reported store failure")
		s.setState(StateFailed)
	}
}

// advanceFile persists a status transition once. Transitions never move a
// file backwards.
func (s *Session) advanceFile(ctx context.Context, file *store.LTOFileRow, status store.TransferStatus) {
	if file.Status == status || file.Status == store.TransferCompleted {
		return
	}
	file.Status = status
	if err := s.deps.DB.UpdateLTOFileStatus(ctx, file.ID, status); err != nil {
		s.logger.Warn("persist file status",
			logging.Args(logging.String("filename", file.TapeFilename), logging.Error(err))...)
	}
	s.publishFiles()
}

// finishTransfer commits the batch: the session row is completed and the
// transferred files leave the cache, browse and PSE copies untouched.
func (s *Session) finishTransfer(ctx context.Context) {
	s.releaseLock()
	if err := s.deps.DB.CompleteLTOSession(ctx, s.row.ID); err != nil {
		s.logger.Warn("complete session row", logging.Args(logging.Error(err))...)
	}

	if !s.cfg.Export.KeepFiles {
		for _, file := range s.batch {
			removed, err := s.deps.Cache.RemoveItem(ctx, file.CacheFilename)
			if err != nil {
				s.logger.Warn("remove transferred item",
					logging.Args(logging.String("filename", file.CacheFilename), logging.Error(err))...)
			} else if !removed {
				s.logger.Warn("transferred item already gone from disk",
					logging.Args(logging.String("filename", file.CacheFilename))...)
			}
		}
	}

	s.setMessage("")
	s.setState(StateCompleted)
	s.logger.Info("transfer completed",
		logging.Args(logging.String("barcode", s.barcode))...)
}

// doAbort marks the session aborted. Nothing was confirmed transferred,
// so no cache deletions happen.
func (s *Session) doAbort(ctx context.Context, initiator store.AbortInitiator, reason string) {
	if s.currentState() == StateTransferring {
		s.deps.Drive.AbortStore()
	}
	s.releaseLock()
	if err := s.deps.DB.AbortLTOSession(ctx, s.row.ID, initiator, reason); err != nil {
		s.logger.Warn("mark session aborted", logging.Args(logging.Error(err))...)
	}
	s.setMessage(reason)
	s.setState(StateAborted)
	s.logger.Info("export aborted",
		logging.Args(
			logging.String("initiator", string(initiator)),
			logging.String("reason", reason),
		)...)
}

func (s *Session) releaseLock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Release(); err != nil {
		s.logger.Warn("release transfer lock", logging.Args(logging.Error(err))...)
	}
}

func (s *Session) publishFiles() {
	files := make([]FileStatus, len(s.batch))
	for i, file := range s.batch {
		files[i] = FileStatus{
			Sequence:     file.Sequence,
			TapeFilename: file.TapeFilename,
			Status:       file.Status,
		}
	}
	s.statusMu.Lock()
	s.files = files
	s.statusMu.Unlock()
}

func (s *Session) currentState() State {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.statusMu.Lock()
	s.state = state
	s.statusMu.Unlock()
}

func (s *Session) setMessage(msg string) {
	s.statusMu.Lock()
	s.message = msg
	s.statusMu.Unlock()
}
