package recording

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tapearc/internal/cache"
	"tapearc/internal/capture"
	"tapearc/internal/chunking"
	"tapearc/internal/config"
	"tapearc/internal/diskspace"
	"tapearc/internal/logging"
	"tapearc/internal/mxf"
	"tapearc/internal/sidecar"
	"tapearc/internal/store"
)

// State is the session's coarse lifecycle position.
type State int

const (
	StateNotStarted State = iota
	StateReady
	StateRecording
	StatePrepareChunking
	StateChunking
	StateReviewing
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	case StatePrepareChunking:
		return "prepare chunking"
	case StateChunking:
		return "chunking"
	case StateReviewing:
		return "reviewing"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Result tags the terminal state.
type Result int

const (
	ResultNone Result = iota
	ResultCompleted
	ResultFailed
)

// Snapshot is the polled status surface.
type Snapshot struct {
	State     State
	Result    Result
	Message   string
	VTRErrors int64
	Dropouts  int64
	Duration  int64
}

// Deps are the session's collaborators. BackupVTR may be nil when tape
// backup is disabled; Free defaults to the real statfs.
type Deps struct {
	Cache      *cache.Cache
	DB         *store.Store
	Capture    capture.Capture
	SourceVTR  capture.VTRControl
	BackupVTR  capture.VTRControl
	Replay     capture.ConfidenceReplay
	OpenReader func(path string) (mxf.Reader, error)
	Writer     mxf.WriterFactory
	Browse     chunking.BrowseEncoderFactory
	PSE        chunking.PSEAnalyzer
	Logger     *slog.Logger
	Free       func(path string) (uint64, error)
}

type action int

const (
	actNone action = iota
	actStart
	actStop
	actChunk
	actComplete
	actAbort
)

type request struct {
	start    bool
	stop     bool
	chunk    bool
	complete bool
	abort    bool

	abortInitiator store.AbortInitiator
	abortReason    string
}

type allocation struct {
	spool    string
	instance int
}

// Session drives one tape-to-disk ingest from recording through review to
// completion or abort. All state transitions and all destination/cache
// mutations happen on its single control goroutine; the public methods only
// set request flags or read snapshots.
type Session struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger

	sources  []store.SourceItem
	comments string
	multi    bool

	items *Items
	row   *store.SessionRow
	dests []*store.DestinationRow
	// pageDest reserves the temporary combined page file for multi-item
	// captures.
	pageDest   *store.DestinationRow
	backupDest *store.DestinationRow
	// first instance number handed out per spool, so never-recorded aborts
	// can return the batch.
	allocations []allocation

	captureFile string
	totalFrames int64
	pseDefects  []mxf.DefectRecord
	vtrDefects  []mxf.DefectRecord
	dropDefects []mxf.DefectRecord

	recordedEver bool
	worker       *chunking.Worker
	// planIDs maps chunking plan indexes back to item ids.
	planIDs []int64

	tick          time.Duration
	vtrPoll       time.Duration
	vtrTimeout    time.Duration
	signalTimeout time.Duration
	diskInterval  time.Duration

	ctlMu sync.Mutex
	req   request

	statusMu sync.Mutex
	state    State
	result   Result
	message  string

	done chan struct{}
}

// New builds a session for the given catalogued source items. Start
// persists it and launches the control loop.
func New(cfg *config.Config, deps Deps, sources []store.SourceItem, comments string) (*Session, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("recording: session needs at least one source item")
	}
	if deps.Free == nil {
		deps.Free = diskspace.Free
	}
	return &Session{
		cfg:           cfg,
		deps:          deps,
		logger:        logging.NewComponentLogger(deps.Logger, "recording"),
		sources:       sources,
		comments:      comments,
		multi:         len(sources) > 1,
		items:         NewItems(),
		tick:          10 * time.Millisecond,
		vtrPoll:       10 * time.Millisecond,
		vtrTimeout:    5 * time.Second,
		signalTimeout: 10 * time.Second,
		diskInterval:  time.Second,
		state:         StateNotStarted,
		done:          make(chan struct{}),
	}, nil
}

// Start creates the session and destination rows, allocates instance
// numbers, and launches the control goroutine in the Ready state.
func (s *Session) Start(ctx context.Context) error {
	row, err := s.deps.DB.CreateSession(ctx, s.comments)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	s.row = row
	s.logger = s.logger.With(logging.Args(logging.String("session", row.UUID))...)

	firstBySpool := make(map[string]int)
	for _, source := range s.sources {
		instance, err := s.deps.DB.NextInstanceNumber(ctx, source.SpoolNumber)
		if err != nil {
			return fmt.Errorf("allocate instance number: %w", err)
		}
		if _, ok := firstBySpool[source.SpoolNumber]; !ok {
			firstBySpool[source.SpoolNumber] = instance
			s.allocations = append(s.allocations, allocation{spool: source.SpoolNumber, instance: instance})
		}
		filename := cache.CompleteFilename(baseName(source), instance, ".mxf")
		dest := &store.DestinationRow{
			SessionID:      row.ID,
			Kind:           store.DestHardDisk,
			Filename:       filename,
			BrowseFilename: strings.TrimSuffix(filename, ".mxf") + ".mp4",
			IngestFormat:   s.cfg.Capture.IngestFormat,
			Duration:       -1,
			Source:         source,
		}
		if err := s.deps.DB.CreateDestination(ctx, dest); err != nil {
			return fmt.Errorf("create destination: %w", err)
		}
		s.dests = append(s.dests, dest)
	}

	if s.multi {
		page := &store.DestinationRow{
			SessionID:    row.ID,
			Kind:         store.DestHardDisk,
			Filename:     cache.PageFilename(baseName(s.sources[0]), 0),
			IngestFormat: s.cfg.Capture.IngestFormat,
			Duration:     -1,
			Source:       s.sources[0],
		}
		if err := s.deps.DB.CreateDestination(ctx, page); err != nil {
			return fmt.Errorf("create page destination: %w", err)
		}
		s.pageDest = page
	}

	if s.cfg.VTR.BackupEnabled && s.deps.BackupVTR != nil {
		backup := &store.DestinationRow{
			SessionID:    row.ID,
			Kind:         store.DestVideotape,
			Filename:     baseName(s.sources[0]),
			IngestFormat: s.cfg.Capture.IngestFormat,
			Duration:     -1,
			Source:       s.sources[0],
		}
		if err := s.deps.DB.CreateDestination(ctx, backup); err != nil {
			return fmt.Errorf("create backup destination: %w", err)
		}
		s.backupDest = backup
	}

	s.setState(StateReady)
	go s.run(ctx)
	return nil
}

// Items returns the session's recording item aggregate for direct operator
// manipulation.
func (s *Session) Items() *Items { return s.items }

// SessionID returns the persistence id, valid after Start.
func (s *Session) SessionID() int64 { return s.row.ID }

// Done is closed when the control loop exits.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status returns the polled snapshot.
func (s *Session) Status() Snapshot {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return Snapshot{
		State:     s.state,
		Result:    s.result,
		Message:   s.message,
		VTRErrors: int64(len(s.vtrDefects)),
		Dropouts:  int64(len(s.dropDefects)),
		Duration:  s.totalFrames,
	}
}

// StartRecording requests the Ready → Recording transition.
func (s *Session) StartRecording() {
	s.ctlMu.Lock()
	s.req.start = true
	s.ctlMu.Unlock()
}

// StopRecording requests the end of the capture.
func (s *Session) StopRecording() {
	s.ctlMu.Lock()
	s.req.stop = true
	s.ctlMu.Unlock()
}

// ChunkFile requests segmentation of a multi-item capture.
func (s *Session) ChunkFile() {
	s.ctlMu.Lock()
	s.req.chunk = true
	s.ctlMu.Unlock()
}

// Complete requests session completion from review.
func (s *Session) Complete() {
	s.ctlMu.Lock()
	s.req.complete = true
	s.ctlMu.Unlock()
}

// Abort requests a session abort. The call returns immediately; callers
// needing the outcome poll Status until the End state.
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

// run is the control loop. An abort request preempts every other pending
// action; at most one action executes per tick.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session loop panic",
				logging.Args(logging.Any("panic", r))...)
			func() {
				defer func() { recover() }()
				s.doAbort(context.Background(), store.AbortBySystem, fmt.Sprintf("internal error: %v", r))
			}()
		}
	}()

	var lastDiskCheck time.Time
	for s.currentState() != StateEnd {
		select {
		case <-ctx.Done():
			s.doAbort(context.Background(), store.AbortBySystem, "shutting down")
			return
		case <-time.After(s.tick):
		}

		switch s.takeAction() {
		case actAbort:
			s.ctlMu.Lock()
			initiator, reason := s.req.abortInitiator, s.req.abortReason
			s.ctlMu.Unlock()
			s.doAbort(ctx, initiator, reason)
			continue
		case actComplete:
			if s.currentState() == StateReviewing {
				s.doComplete(ctx)
			}
			continue
		case actChunk:
			if s.currentState() == StatePrepareChunking {
				s.doChunk(ctx)
			}
			continue
		case actStop:
			if s.currentState() == StateRecording {
				s.doStop(ctx)
			}
			continue
		case actStart:
			if s.currentState() == StateReady {
				s.doStart(ctx)
			}
			continue
		}

		switch s.currentState() {
		case StateRecording:
			if time.Since(lastDiskCheck) >= s.diskInterval {
				lastDiskCheck = time.Now()
				s.checkDiskSpace(ctx)
			}
		case StateChunking:
			select {
			case <-s.worker.Done():
				s.finishChunking(ctx)
			default:
			}
		}
	}
}

// takeAction clears and returns the highest-priority pending request.
func (s *Session) takeAction() action {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	switch {
	case s.req.abort:
		s.req.abort = false
		return actAbort
	case s.req.complete:
		s.req.complete = false
		return actComplete
	case s.req.chunk:
		s.req.chunk = false
		return actChunk
	case s.req.stop:
		s.req.stop = false
		return actStop
	case s.req.start:
		s.req.start = false
		return actStart
	}
	return actNone
}

// doStart runs the recording start sequence. Every failure here is local:
// already-started decks are stopped, a status message is set, and the
// session stays Ready for another attempt.
func (s *Session) doStart(ctx context.Context) {
	if s.deps.Capture.Busy() {
		s.setMessage("capture subsystem busy")
		return
	}
	if bad, msg := vtrUnusable(s.deps.SourceVTR.State()); bad {
		s.setMessage("source VTR " + msg)
		return
	}
	if s.backupEnabled() {
		if bad, msg := vtrUnusable(s.deps.BackupVTR.State()); bad {
			s.setMessage("backup VTR " + msg)
			return
		}
	}

	if !s.deps.SourceVTR.StandbyOn() || !s.waitVTRState(s.deps.SourceVTR, capture.VTRPaused) {
		s.setMessage("pause source VTR failed")
		return
	}
	if !s.deps.SourceVTR.Play() || !s.waitVTRState(s.deps.SourceVTR, capture.VTRPlay) {
		s.deps.SourceVTR.Stop()
		s.setMessage("play source VTR failed")
		return
	}
	if !s.waitSignal() {
		s.deps.SourceVTR.Stop()
		s.setMessage("SDI signal not stable")
		return
	}
	if s.backupEnabled() {
		if !s.deps.BackupVTR.Record() || !s.waitVTRState(s.deps.BackupVTR, capture.VTRRecording) {
			s.deps.SourceVTR.Stop()
			s.deps.BackupVTR.Stop()
			s.setMessage("start backup recording failed")
			return
		}
	}

	var reserveDest *store.DestinationRow
	var outputPath, browsePath string
	isTemp := false
	if s.multi {
		reserveDest = s.pageDest
		outputPath = filepath.Join(s.deps.Cache.StagingDir(), s.pageDest.Filename)
		isTemp = true
	} else {
		reserveDest = s.dests[0]
		outputPath = filepath.Join(s.deps.Cache.StagingDir(), s.dests[0].Filename)
		browsePath = filepath.Join(s.deps.Cache.BrowseDirectory(), s.dests[0].BrowseFilename)
	}
	if err := s.deps.Cache.RegisterCreatingItem(ctx, reserveDest, s.row, isTemp); err != nil {
		s.stopVTRs()
		s.setMessage("reserve cache entry failed: " + err.Error())
		return
	}

	started := false
	if s.multi {
		started = s.deps.Capture.StartMultiItemRecord(outputPath, browsePath)
	} else {
		started = s.deps.Capture.StartRecord(outputPath, browsePath)
	}
	if !started {
		s.stopVTRs()
		if err := s.deps.Cache.RemoveCreatingItem(ctx, reserveDest.Filename); err != nil {
			s.logger.Warn("remove reservation after failed start",
				logging.Args(logging.Error(err))...)
		}
		s.setMessage("start capture failed")
		return
	}

	s.captureFile = outputPath
	s.recordedEver = true
	s.setMessage("")
	s.setState(StateRecording)
	s.logger.Info("recording started",
		logging.Args(logging.String("output", outputPath))...)
}

// doStop ends the capture, snapshots defects and geometry, seeds the
// combined clip, and moves to review or chunking preparation.
func (s *Session) doStop(ctx context.Context) {
	var result *capture.RecordResult
	var ok bool
	if s.multi {
		result, ok = s.deps.Capture.StopMultiItemRecord()
	} else {
		result, ok = s.deps.Capture.StopRecord()
	}
	if !ok {
		s.doAbort(ctx, store.AbortBySystem, "stop capture failed")
		return
	}

	s.statusMu.Lock()
	s.totalFrames = result.DurationFrames
	s.pseDefects = result.PSEFailures
	s.vtrDefects = result.VTRErrors
	s.dropDefects = result.Dropouts
	s.statusMu.Unlock()

	clipName := s.dests[0].Filename
	if s.multi {
		clipName = s.pageDest.Filename
	}
	if err := s.items.InitClip(clipName, result.DurationFrames, s.sources[0]); err != nil {
		s.doAbort(ctx, store.AbortBySystem, "initialize clip failed: "+err.Error())
		return
	}

	s.stopVTRs()

	if !s.multi {
		dest := s.dests[0]
		dest.Duration = result.DurationFrames
		dest.MaterialUID = result.MaterialUID
		dest.FileUID = result.FileUID
		if err := s.deps.DB.UpdateDestination(ctx, dest); err != nil {
			s.doAbort(ctx, store.AbortBySystem, "update destination failed: "+err.Error())
			return
		}
		if err := s.deps.Cache.UpdateCreatingItem(ctx, dest, s.row); err != nil {
			s.doAbort(ctx, store.AbortBySystem, "update cache entry failed: "+err.Error())
			return
		}
	}

	if !s.deps.Replay.Start(s.captureFile) {
		s.setMessage("start confidence replay failed")
	}

	if s.multi {
		s.setState(StatePrepareChunking)
	} else {
		s.setState(StateReviewing)
	}
	s.logger.Info("recording stopped",
		logging.Args(logging.Int64("frames", result.DurationFrames))...)
}

// doChunk validates the item plan, locks the list, and spawns the
// segmentation worker.
func (s *Session) doChunk(ctx context.Context) {
	if !s.items.ReadyForChunking() {
		s.setMessage("items not ready for chunking")
		return
	}

	var plan []chunking.PlanItem
	var planIDs []int64
	destIdx := 0
	for _, item := range s.items.Snapshot() {
		if item.IsDisabled || item.Clip.Duration < 0 {
			continue
		}
		if item.IsJunk {
			plan = append(plan, chunking.PlanItem{IsJunk: true, Duration: item.Clip.Duration})
			planIDs = append(planIDs, item.ID)
			continue
		}
		if destIdx >= len(s.dests) {
			s.setMessage("more items than catalogued destinations")
			return
		}
		dest := s.dests[destIdx]
		destIdx++
		plan = append(plan, chunking.PlanItem{
			Duration:    item.Clip.Duration,
			Destination: dest,
			Infax: mxf.InfaxData{
				SpoolNumber:     dest.Source.SpoolNumber,
				ItemNumber:      dest.Source.ItemNumber,
				ProgrammeNumber: dest.Source.ProgrammeNumber,
				MagazinePrefix:  dest.Source.MagazinePrefix,
				ProductionCode:  dest.Source.ProductionCode,
				ProgrammeTitle:  dest.Source.ProgrammeTitle,
				Format:          dest.IngestFormat,
			},
		})
		planIDs = append(planIDs, item.ID)
	}

	s.items.Lock()
	s.deps.Replay.Stop()

	reader, err := s.deps.OpenReader(s.captureFile)
	if err != nil {
		s.doAbort(ctx, store.AbortBySystem, "open capture for chunking: "+err.Error())
		return
	}

	s.planIDs = planIDs
	s.worker = chunking.New(chunking.Config{
		Items:           plan,
		TotalFrames:     s.totalFrames,
		Writer:          writerConfig(),
		Browse:          s.cfg.Capture.BrowseEnabled,
		PSE:             s.cfg.Capture.PSEEnabled,
		DiskCheckFrames: s.cfg.Recorder.PageSizeFrames,
		MinDiskBytes:    s.cfg.MinDiskBytes(),
	}, chunking.Deps{
		Reader:        reader,
		WriterFactory: s.deps.Writer,
		BrowseFactory: s.deps.Browse,
		PSE:           s.deps.PSE,
		Cache:         s.deps.Cache,
		Session:       s.row,
		Logger:        s.deps.Logger,
		Free:          s.deps.Free,
		OnItemChunked: func(index int, filename string) {
			s.items.setChunkedFilename(s.planIDs[index], filename)
		},
	})
	s.worker.Start(ctx)
	s.setState(StateChunking)
}

// finishChunking reacts to the worker's exit: success moves to review with
// the replay pointed at the first chunked item, anything else escalates to
// a system abort.
func (s *Session) finishChunking(ctx context.Context) {
	status, err := s.worker.Result()
	if status != chunking.StatusCompleted {
		reason := "chunking failed"
		if err != nil {
			reason = "chunking failed: " + err.Error()
		}
		s.doAbort(ctx, store.AbortBySystem, reason)
		return
	}

	for _, item := range s.items.Snapshot() {
		if item.ChunkedFilename != "" {
			path := filepath.Join(s.deps.Cache.StagingDir(), item.ChunkedFilename)
			if !s.deps.Replay.Start(path) {
				s.setMessage("start confidence replay failed")
			}
			break
		}
	}
	s.setState(StateReviewing)
}

// doComplete commits the session: the page reservation goes, the session
// row is marked completed, and every item reservation is finalized. Any
// failure converts the outcome to an abort rather than leaving the session
// half-committed.
func (s *Session) doComplete(ctx context.Context) {
	s.deps.Replay.Stop()

	if s.multi && s.pageDest != nil {
		if err := s.deps.Cache.RemoveCreatingItem(ctx, s.pageDest.Filename); err != nil {
			s.doAbort(ctx, store.AbortBySystem, "remove page reservation failed: "+err.Error())
			return
		}
	}

	vtrCount := int64(len(s.vtrDefects))
	dropCount := int64(len(s.dropDefects))
	if err := s.deps.DB.CompleteSession(ctx, s.row.ID, s.comments, vtrCount, dropCount); err != nil {
		s.doAbort(ctx, store.AbortBySystem, "complete session row failed: "+err.Error())
		return
	}
	s.row.Status = store.SessionCompleted
	s.row.VTRErrors = vtrCount
	s.row.Dropouts = dropCount

	for _, dest := range s.chunkedDests() {
		if err := s.deps.Cache.UpdateCreatingItem(ctx, dest, s.row); err != nil {
			s.doAbort(ctx, store.AbortBySystem, "update cache entry failed: "+err.Error())
			return
		}
		if err := s.deps.Cache.FinaliseCreatingItem(ctx, dest); err != nil {
			s.doAbort(ctx, store.AbortBySystem, "finalise cache entry failed: "+err.Error())
			return
		}
		if dest.BrowseFilename != "" {
			infoPath := filepath.Join(s.deps.Cache.BrowseDirectory(),
				strings.TrimSuffix(dest.BrowseFilename, filepath.Ext(dest.BrowseFilename))+".txt")
			if err := writeBrowseInfo(infoPath, dest); err != nil {
				s.doAbort(ctx, store.AbortBySystem, "write browse info failed: "+err.Error())
				return
			}
		}
	}

	s.setResult(ResultCompleted, "")
	s.setState(StateEnd)
	s.logger.Info("session completed",
		logging.Args(logging.Int64("session_id", s.row.ID))...)
}

// doAbort tears the session down from whatever state it is in. A session
// that never started recording is deleted outright, with its tentatively
// allocated instance numbers returned; anything else is marked aborted.
func (s *Session) doAbort(ctx context.Context, initiator store.AbortInitiator, reason string) {
	state := s.currentState()

	if state == StateRecording {
		s.deps.Capture.AbortRecord()
		s.stopVTRs()
	}
	s.deps.Replay.Stop()
	if s.worker != nil {
		// The worker must be fully stopped before the reservations are
		// purged, or it would keep writing staging files for them.
		s.worker.Stop()
		<-s.worker.Done()
		s.worker = nil
	}

	if err := s.deps.Cache.RemoveCreatingItems(ctx); err != nil {
		s.logger.Warn("remove reservations during abort",
			logging.Args(logging.Error(err))...)
	}

	if !s.recordedEver {
		if err := s.deps.DB.DeleteSession(ctx, s.row.ID); err != nil {
			s.logger.Warn("delete never-recorded session",
				logging.Args(logging.Error(err))...)
		}
		for _, alloc := range s.allocations {
			if err := s.deps.DB.ResetInstanceNumber(ctx, alloc.spool, alloc.instance); err != nil {
				s.logger.Warn("reset instance counter",
					logging.Args(logging.String("spool", alloc.spool), logging.Error(err))...)
			}
		}
	} else {
		if err := s.deps.DB.AbortSession(ctx, s.row.ID, initiator, reason); err != nil {
			s.logger.Warn("mark session aborted",
				logging.Args(logging.Error(err))...)
		}
	}

	s.setResult(ResultFailed, reason)
	s.setState(StateEnd)
	s.logger.Info("session aborted",
		logging.Args(
			logging.String("initiator", string(initiator)),
			logging.String("reason", reason),
		)...)
}

// checkDiskSpace self-triggers a stop when free space drops below the
// safety margin while recording.
func (s *Session) checkDiskSpace(ctx context.Context) {
	minBytes := s.cfg.MinDiskBytes()
	if minBytes == 0 {
		return
	}
	free, err := s.deps.Free(s.deps.Cache.Directory())
	if err != nil {
		s.logger.Warn("disk space check failed", logging.Args(logging.Error(err))...)
		return
	}
	if free < minBytes {
		s.logger.Warn("disk space below safety margin, stopping recording",
			logging.Args(logging.Uint64("free_bytes", free))...)
		s.setMessage("disk space low, recording stopped")
		s.doStop(ctx)
	}
}

// chunkedDests returns the destinations that actually received content, in
// plan order for multi-item sessions.
func (s *Session) chunkedDests() []*store.DestinationRow {
	if !s.multi {
		return s.dests[:1]
	}
	var out []*store.DestinationRow
	for _, dest := range s.dests {
		if dest.Duration >= 0 {
			out = append(out, dest)
		}
	}
	return out
}

func (s *Session) backupEnabled() bool {
	return s.cfg.VTR.BackupEnabled && s.deps.BackupVTR != nil
}

func (s *Session) stopVTRs() {
	s.deps.SourceVTR.Stop()
	if s.backupEnabled() {
		s.deps.BackupVTR.Stop()
	}
}

func (s *Session) waitVTRState(v capture.VTRControl, want capture.VTRState) bool {
	deadline := time.Now().Add(s.vtrTimeout)
	for time.Now().Before(deadline) {
		if v.State() == want {
			return true
		}
		time.Sleep(s.vtrPoll)
	}
	return false
}

func (s *Session) waitSignal() bool {
	deadline := time.Now().Add(s.signalTimeout)
	for time.Now().Before(deadline) {
		stats := s.deps.Capture.GeneralStats()
		if stats.SignalPresent && stats.SignalLocked {
			return true
		}
		time.Sleep(s.vtrPoll)
	}
	return false
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

func (s *Session) setResult(result Result, msg string) {
	s.statusMu.Lock()
	s.result = result
	if msg != "" {
		s.message = msg
	}
	s.statusMu.Unlock()
}

// vtrUnusable reports deck states that block a recording start.
func vtrUnusable(state capture.VTRState) (bool, string) {
	switch state {
	case capture.VTRNotConnected:
		return true, "not connected"
	case capture.VTRRemoteLockout:
		return true, "in remote lockout"
	case capture.VTRTapeUnthreaded:
		return true, "has no tape threaded"
	}
	return false, ""
}

func writerConfig() mxf.WriterConfig {
	return mxf.WriterConfig{
		ComponentDepth:  8,
		AspectRatio:     "4:3",
		AudioTracks:     4,
		IncludeChecksum: true,
		PrimaryTimecode: "vitc",
	}
}

// writeBrowseInfo writes the descriptive info sidecar next to the item's
// browse copy.
func writeBrowseInfo(path string, dest *store.DestinationRow) error {
	return sidecar.WriteInfo(path, mxf.InfaxData{
		SpoolNumber:     dest.Source.SpoolNumber,
		ItemNumber:      dest.Source.ItemNumber,
		ProgrammeNumber: dest.Source.ProgrammeNumber,
		MagazinePrefix:  dest.Source.MagazinePrefix,
		ProductionCode:  dest.Source.ProductionCode,
		ProgrammeTitle:  dest.Source.ProgrammeTitle,
		Format:          dest.IngestFormat,
		DurationFrames:  dest.Duration,
	})
}

func baseName(source store.SourceItem) string {
	return source.MagazinePrefix + source.SpoolNumber
}
