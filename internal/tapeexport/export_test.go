package tapeexport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tapearc/internal/cache"
	"tapearc/internal/config"
	"tapearc/internal/fsys"
	"tapearc/internal/logging"
	"tapearc/internal/store"
	"tapearc/internal/tapedrive"
	"tapearc/internal/testsupport"
	"tapearc/internal/translock"
)

const gib = int64(1) << 30

type exportFixture struct {
	cfg     *config.Config
	db      *store.Store
	cache   *cache.Cache
	drive   *testsupport.FakeDrive
	session *Session
}

func newExportFixture(t *testing.T, opts ...testsupport.ConfigOption) *exportFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	db := testsupport.MustOpenStore(t, cfg)

	cacheOpts := cache.OptionsFromConfig(cfg)
	cacheOpts.DisableWatch = true
	c := cache.New(cacheOpts, fsys.NewOSFileStore(), db, logging.NewNop())
	t.Cleanup(func() { _ = c.Close() })

	return &exportFixture{
		cfg:   cfg,
		db:    db,
		cache: c,
		drive: testsupport.NewFakeDrive(),
	}
}

// seedItem plants a finalized cache entry backed by a tiny real file. The
// recorded size and session age come from the row, so selection behaviour
// can be scripted without writing gigabytes to disk.
func (f *exportFixture) seedItem(t *testing.T, filename string, size int64, created time.Time, status store.SessionStatus) int64 {
	t.Helper()
	ctx := context.Background()
	cacheRow, err := f.db.LoadCache(ctx, f.cfg.Recorder.Name, f.cfg.Paths.CacheDir)
	if err != nil {
		cacheRow, err = f.db.CreateCache(ctx, f.cfg.Recorder.Name, f.cfg.Paths.CacheDir)
		if err != nil {
			t.Fatalf("CreateCache: %v", err)
		}
	}
	session := testsupport.NewSession(t, f.db, "")
	dest := testsupport.NewDestination(t, f.db, session.ID, filename)
	row := &store.CacheItemRow{
		CacheID:          cacheRow.ID,
		DestinationID:    dest.ID,
		Filename:         filename,
		IngestFormat:     "D10-50",
		Size:             size,
		Duration:         1500,
		SessionID:        session.ID,
		SessionCreatedAt: created,
		SessionStatus:    status,
	}
	if err := f.db.SaveCacheItem(ctx, row); err != nil {
		t.Fatalf("SaveCacheItem: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.CacheDir, filename), 16)
	return dest.ID
}

func (f *exportFixture) startCache(t *testing.T) {
	t.Helper()
	if err := f.cache.Start(context.Background()); err != nil {
		t.Fatalf("cache.Start: %v", err)
	}
}

func (f *exportFixture) deps() Deps {
	return Deps{Cache: f.cache, DB: f.db, Drive: f.drive, Logger: logging.NewNop()}
}

func (f *exportFixture) startAuto(t *testing.T, barcode string) {
	t.Helper()
	f.session = NewAuto(f.cfg, f.deps(), barcode)
	f.session.tick = 2 * time.Millisecond
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("session.Start: %v", err)
	}
	f.cleanupSession(t)
}

func (f *exportFixture) startManual(t *testing.T, barcode string, ids []int64) error {
	t.Helper()
	f.session = NewManual(f.cfg, f.deps(), barcode, ids)
	f.session.tick = 2 * time.Millisecond
	err := f.session.Start(context.Background())
	if err == nil {
		f.cleanupSession(t)
	}
	return err
}

func (f *exportFixture) cleanupSession(t *testing.T) {
	t.Cleanup(func() {
		if !f.session.currentState().terminal() {
			f.session.Abort(false, "test teardown")
			<-f.session.Done()
		}
	})
}

func (f *exportFixture) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f.session.Status().State == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v (message %q)",
		f.session.Status().State, want, f.session.Status().Message)
}

func (f *exportFixture) waitFileStatus(t *testing.T, index int, want store.TransferStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		files := f.session.Status().Files
		if index < len(files) && files[index].Status == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("file %d never reached %s", index, want)
}

func TestAutoSelectionSkipsOversizedCandidates(t *testing.T) {
	f := newExportFixture(t, testsupport.WithExportCaps(1000, 100, 0))
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	f.seedItem(t, "a.mxf", 600*gib, base, store.SessionCompleted)
	f.seedItem(t, "b.mxf", 600*gib, base.Add(time.Hour), store.SessionCompleted)
	f.seedItem(t, "c.mxf", 50*gib, base.Add(2*time.Hour), store.SessionCompleted)
	f.startCache(t)

	// Park selection at the tape-ready wait so the batch can be inspected.
	f.drive.SetTape(tapedrive.TapeNotPresent)
	f.startAuto(t, "LTO0042")
	f.waitState(t, StateWaitingForTapeReady)

	// Oldest first; the second 600 would breach the cap, so the scan skips
	// it and still picks up the smaller file behind it.
	files := f.session.Status().Files
	if len(files) != 2 {
		t.Fatalf("selected %d files, want 2", len(files))
	}
	if files[0].TapeFilename != "LTO004201.mxf" || files[1].TapeFilename != "LTO004202.mxf" {
		t.Fatalf("tape filenames = %q, %q", files[0].TapeFilename, files[1].TapeFilename)
	}

	f.drive.SetTape(tapedrive.TapeReady)
	f.waitState(t, StateTransferring)
	wantPaths := []string{
		filepath.Join(f.cfg.Paths.CacheDir, "a.mxf"),
		filepath.Join(f.cfg.Paths.CacheDir, "c.mxf"),
	}
	if len(f.drive.Files) != 2 || f.drive.Files[0] != wantPaths[0] || f.drive.Files[1] != wantPaths[1] {
		t.Fatalf("drive got %v, want %v", f.drive.Files, wantPaths)
	}
	if f.drive.Barcode != "LTO0042" {
		t.Fatalf("barcode = %q", f.drive.Barcode)
	}

	f.drive.FinishStore(true)
	f.waitState(t, StateCompleted)

	// Transferred files leave the cache; the skipped one stays.
	if f.cache.ItemExists("a.mxf") || f.cache.ItemExists("c.mxf") {
		t.Fatal("transferred items still in cache")
	}
	if !f.cache.ItemExists("b.mxf") {
		t.Fatal("unselected item removed from cache")
	}
	rows, err := f.db.LTOFilesForSession(context.Background(), f.session.SessionID())
	if err != nil {
		t.Fatalf("LTOFilesForSession: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("persisted %d files", len(rows))
	}
	for _, row := range rows {
		if row.Status != store.TransferCompleted {
			t.Fatalf("file %s status = %s", row.TapeFilename, row.Status)
		}
	}
}

func TestAutoWaitsForMinimumBacklog(t *testing.T) {
	f := newExportFixture(t, testsupport.WithExportCaps(1000, 100, 0))
	f.seedItem(t, "small.mxf", 50*gib, time.Now().UTC(), store.SessionCompleted)
	f.startCache(t)

	f.startAuto(t, "LTO0001")

	time.Sleep(50 * time.Millisecond)
	snap := f.session.Status()
	if snap.State != StateSelectingFiles {
		t.Fatalf("state = %v, want selecting", snap.State)
	}
	if snap.Message != "waiting for enough completed backlog" {
		t.Fatalf("message = %q", snap.Message)
	}

	f.session.Abort(true, "nothing to export")
	<-f.session.Done()
	sessions, err := f.db.LTOSessionsByStatus(context.Background(), f.cfg.Recorder.Name, store.LTOSessionAborted)
	if err != nil {
		t.Fatalf("LTOSessionsByStatus: %v", err)
	}
	if len(sessions) != 1 || sessions[0].AbortInitiator != store.AbortByUser {
		t.Fatalf("aborted sessions = %+v", sessions)
	}
}

func TestAutoIgnoresUnfinishedSessions(t *testing.T) {
	f := newExportFixture(t, testsupport.WithExportCaps(1000, 10, 2))
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	f.seedItem(t, "aborted.mxf", 200*gib, base, store.SessionAborted)
	f.seedItem(t, "done1.mxf", 200*gib, base.Add(time.Hour), store.SessionCompleted)
	f.seedItem(t, "done2.mxf", 200*gib, base.Add(2*time.Hour), store.SessionCompleted)
	f.seedItem(t, "done3.mxf", 200*gib, base.Add(3*time.Hour), store.SessionCompleted)
	f.startCache(t)

	f.drive.SetTape(tapedrive.TapeNotPresent)
	f.startAuto(t, "LTO0002")
	f.waitState(t, StateWaitingForTapeReady)

	// The aborted-session file never qualifies, and the file cap stops the
	// scan at two of the three completed ones, oldest first.
	files := f.session.Status().Files
	if len(files) != 2 {
		t.Fatalf("selected %d files, want 2", len(files))
	}
	f.drive.SetTape(tapedrive.TapeReady)
	f.waitState(t, StateTransferring)
	want := []string{
		filepath.Join(f.cfg.Paths.CacheDir, "done1.mxf"),
		filepath.Join(f.cfg.Paths.CacheDir, "done2.mxf"),
	}
	if len(f.drive.Files) != 2 || f.drive.Files[0] != want[0] || f.drive.Files[1] != want[1] {
		t.Fatalf("drive got %v, want %v", f.drive.Files, want)
	}
}

func TestManualSelectionValidation(t *testing.T) {
	f := newExportFixture(t, testsupport.WithExportCaps(500, 0, 0))
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	okID := f.seedItem(t, "ok.mxf", 200*gib, base, store.SessionCompleted)
	bigID := f.seedItem(t, "big.mxf", 400*gib, base.Add(time.Hour), store.SessionCompleted)
	openID := f.seedItem(t, "open.mxf", 10*gib, base.Add(2*time.Hour), store.SessionRecording)
	f.startCache(t)

	if err := f.startManual(t, "LTO0003", nil); err == nil {
		t.Fatal("empty selection accepted")
	}
	if err := f.startManual(t, "LTO0003", []int64{okID, 99999}); err == nil {
		t.Fatal("unknown id accepted")
	}
	if err := f.startManual(t, "LTO0003", []int64{okID, openID}); err == nil {
		t.Fatal("unfinished session item accepted")
	}
	if err := f.startManual(t, "LTO0003", []int64{okID, bigID}); err == nil {
		t.Fatal("over-cap selection accepted")
	}

	// Every rejected start leaves an aborted session row and no batch.
	ctx := context.Background()
	aborted, err := f.db.LTOSessionsByStatus(ctx, f.cfg.Recorder.Name, store.LTOSessionAborted)
	if err != nil {
		t.Fatalf("LTOSessionsByStatus: %v", err)
	}
	if len(aborted) != 4 {
		t.Fatalf("aborted rows = %d, want 4", len(aborted))
	}
	for _, row := range aborted {
		files, err := f.db.LTOFilesForSession(ctx, row.ID)
		if err != nil {
			t.Fatalf("LTOFilesForSession: %v", err)
		}
		if len(files) != 0 {
			t.Fatalf("rejected session %d persisted %d files", row.ID, len(files))
		}
	}

	// A valid manual pick still goes through.
	if err := f.startManual(t, "LTO0003", []int64{okID}); err != nil {
		t.Fatalf("valid selection rejected: %v", err)
	}
	f.waitState(t, StateTransferring)
}

func TestOffsetInfersSkippedFileCompletion(t *testing.T) {
	f := newExportFixture(t, testsupport.WithExportCaps(1000, 0, 0))
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	var ids []int64
	for i, name := range []string{"x.mxf", "y.mxf", "z.mxf"} {
		ids = append(ids, f.seedItem(t, name, 10*gib, base.Add(time.Duration(i)*time.Hour), store.SessionCompleted))
	}
	f.startCache(t)

	if err := f.startManual(t, "LTO0004", ids); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, StateTransferring)
	f.waitFileStatus(t, 0, store.TransferStarted)

	// The drive's offset jumps straight past the second file. Every file
	// before the offset is completed even if it was never seen started.
	f.drive.AdvanceStore(2, "z.mxf")
	f.waitFileStatus(t, 0, store.TransferCompleted)
	f.waitFileStatus(t, 1, store.TransferCompleted)
	f.waitFileStatus(t, 2, store.TransferStarted)

	rows, err := f.db.LTOFilesForSession(context.Background(), f.session.SessionID())
	if err != nil {
		t.Fatalf("LTOFilesForSession: %v", err)
	}
	if rows[1].Status != store.TransferCompleted {
		t.Fatalf("skipped file persisted as %s", rows[1].Status)
	}

	f.drive.FinishStore(true)
	f.waitState(t, StateCompleted)
}

func TestKeepFilesLeavesCacheIntact(t *testing.T) {
	f := newExportFixture(t, testsupport.WithExportCaps(1000, 0, 0))
	f.cfg.Export.KeepFiles = true
	id := f.seedItem(t, "keep.mxf", 10*gib, time.Now().UTC(), store.SessionCompleted)
	f.startCache(t)

	if err := f.startManual(t, "LTO0005", []int64{id}); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, StateTransferring)
	f.drive.FinishStore(true)
	f.waitState(t, StateCompleted)

	if !f.cache.ItemExists("keep.mxf") {
		t.Fatal("item removed despite keep_files")
	}
}

func TestStoreFailureFailsSession(t *testing.T) {
	f := newExportFixture(t, testsupport.WithExportCaps(1000, 0, 0))
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	id1 := f.seedItem(t, "first.mxf", 10*gib, base, store.SessionCompleted)
	id2 := f.seedItem(t, "second.mxf", 10*gib, base.Add(time.Hour), store.SessionCompleted)
	f.startCache(t)

	if err := f.startManual(t, "LTO0006", []int64{id1, id2}); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, StateTransferring)
	f.drive.AdvanceStore(1, "second.mxf")
	f.waitFileStatus(t, 0, store.TransferCompleted)
	f.drive.FinishStore(false)
	f.waitState(t, StateFailed)

	ctx := context.Background()
	rows, err := f.db.LTOFilesForSession(ctx, f.session.SessionID())
	if err != nil {
		t.Fatalf("LTOFilesForSession: %v", err)
	}
	if rows[0].Status != store.TransferCompleted || rows[1].Status != store.TransferFailed {
		t.Fatalf("statuses = %s, %s", rows[0].Status, rows[1].Status)
	}
	// Nothing is deleted on failure, including the file the drive said it
	// finished: only a completed session commits deletions.
	if !f.cache.ItemExists("first.mxf") || !f.cache.ItemExists("second.mxf") {
		t.Fatal("cache entries deleted after failed transfer")
	}
	sessions, err := f.db.LTOSessionsByStatus(ctx, f.cfg.Recorder.Name, store.LTOSessionAborted)
	if err != nil {
		t.Fatalf("LTOSessionsByStatus: %v", err)
	}
	if len(sessions) != 1 || sessions[0].AbortInitiator != store.AbortBySystem {
		t.Fatalf("aborted sessions = %+v", sessions)
	}
	if translock.Held(f.cache.TransferLockPath()) {
		t.Fatal("transfer lock still held")
	}
}

func TestAbortMidTransferDeletesNothing(t *testing.T) {
	f := newExportFixture(t, testsupport.WithExportCaps(1000, 0, 0))
	id := f.seedItem(t, "loaded.mxf", 10*gib, time.Now().UTC(), store.SessionCompleted)
	f.startCache(t)

	if err := f.startManual(t, "LTO0007", []int64{id}); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, StateTransferring)
	f.session.Abort(true, "wrong tape loaded")
	f.waitState(t, StateAborted)

	if f.drive.AbortCalls != 1 {
		t.Fatalf("AbortStore called %d times", f.drive.AbortCalls)
	}
	if !f.cache.ItemExists("loaded.mxf") {
		t.Fatal("abort deleted a cache entry")
	}
	sessions, err := f.db.LTOSessionsByStatus(context.Background(), f.cfg.Recorder.Name, store.LTOSessionAborted)
	if err != nil {
		t.Fatalf("LTOSessionsByStatus: %v", err)
	}
	if len(sessions) != 1 || sessions[0].AbortReason != "wrong tape loaded" {
		t.Fatalf("aborted sessions = %+v", sessions)
	}
	if translock.Held(f.cache.TransferLockPath()) {
		t.Fatal("transfer lock still held")
	}
}

func TestAutoReselectsWhenSelectedFileVanishes(t *testing.T) {
	f := newExportFixture(t, testsupport.WithExportCaps(1000, 0, 0))
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	f.seedItem(t, "gone.mxf", 600*gib, base, store.SessionCompleted)
	f.seedItem(t, "stays.mxf", 50*gib, base.Add(time.Hour), store.SessionCompleted)
	f.startCache(t)

	f.drive.SetTape(tapedrive.TapeNotPresent)
	f.startAuto(t, "LTO0008")
	f.waitState(t, StateWaitingForTapeReady)

	if _, err := f.cache.RemoveItem(context.Background(), "gone.mxf"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	f.drive.SetTape(tapedrive.TapeReady)

	// The stale batch is discarded and selection runs again against what
	// is actually left.
	f.waitState(t, StateTransferring)
	want := filepath.Join(f.cfg.Paths.CacheDir, "stays.mxf")
	if len(f.drive.Files) != 1 || f.drive.Files[0] != want {
		t.Fatalf("drive got %v, want [%s]", f.drive.Files, want)
	}
}

func TestManualAbortsWhenSelectedFileVanishes(t *testing.T) {
	f := newExportFixture(t, testsupport.WithExportCaps(1000, 0, 0))
	id := f.seedItem(t, "fleeting.mxf", 10*gib, time.Now().UTC(), store.SessionCompleted)
	f.startCache(t)

	f.drive.SetTape(tapedrive.TapeNotPresent)
	if err := f.startManual(t, "LTO0009", []int64{id}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.cache.RemoveItem(context.Background(), "fleeting.mxf"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	f.drive.SetTape(tapedrive.TapeReady)
	f.waitState(t, StateAborted)

	sessions, err := f.db.LTOSessionsByStatus(context.Background(), f.cfg.Recorder.Name, store.LTOSessionAborted)
	if err != nil {
		t.Fatalf("LTOSessionsByStatus: %v", err)
	}
	if len(sessions) != 1 || sessions[0].AbortInitiator != store.AbortBySystem {
		t.Fatalf("aborted sessions = %+v", sessions)
	}
}
