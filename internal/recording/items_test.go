package recording

import (
	"testing"

	"tapearc/internal/store"
)

func source(spool string, item int) store.SourceItem {
	return store.SourceItem{SpoolNumber: spool, ItemNumber: item, MagazinePrefix: "LTA"}
}

func TestMarkAndClearItem(t *testing.T) {
	items := NewItems()
	if err := items.InitClip("capture.mxfp", 1000, source("000123", 1)); err != nil {
		t.Fatalf("InitClip: %v", err)
	}

	id, err := items.MarkItemStart(400, source("000123", 2), false)
	if err != nil {
		t.Fatalf("MarkItemStart: %v", err)
	}
	snap := items.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("items = %d", len(snap))
	}
	if snap[0].Clip.Duration != 400 {
		t.Fatalf("head duration = %d", snap[0].Clip.Duration)
	}
	if snap[1].Clip.StartPosition != 400 || snap[1].Clip.Duration != 600 {
		t.Fatalf("tail span = %d+%d", snap[1].Clip.StartPosition, snap[1].Clip.Duration)
	}

	if err := items.ClearItem(id); err != nil {
		t.Fatalf("ClearItem: %v", err)
	}
	snap = items.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("items after clear = %d", len(snap))
	}
	if snap[0].Clip.Duration != 1000 {
		t.Fatalf("merged duration = %d", snap[0].Clip.Duration)
	}
}

func TestSplitsConserveTotalDuration(t *testing.T) {
	items := NewItems()
	if err := items.InitClip("capture.mxfp", 900, source("000123", 1)); err != nil {
		t.Fatalf("InitClip: %v", err)
	}
	if _, err := items.MarkItemStart(100, source("000123", 2), true); err != nil {
		t.Fatalf("first split: %v", err)
	}
	if _, err := items.MarkItemStart(350, source("000123", 3), false); err != nil {
		t.Fatalf("second split: %v", err)
	}
	if _, err := items.MarkItemStart(800, source("000123", 4), true); err != nil {
		t.Fatalf("third split: %v", err)
	}
	if got := items.TotalDuration(); got != 900 {
		t.Fatalf("total duration = %d, want 900", got)
	}
	var real int64
	for _, item := range items.Snapshot() {
		if !item.IsJunk {
			real += item.Clip.Duration
		}
	}
	if real != 900-250-100 {
		t.Fatalf("non-junk duration = %d", real)
	}
}

func TestMarkItemStartRejectsOutsidePositions(t *testing.T) {
	items := NewItems()
	if err := items.InitClip("capture.mxfp", 100, source("000123", 1)); err != nil {
		t.Fatalf("InitClip: %v", err)
	}
	for _, pos := range []int64{0, 100, 150} {
		if _, err := items.MarkItemStart(pos, source("000123", 2), false); err == nil {
			t.Fatalf("position %d accepted", pos)
		}
	}
}

func TestReorderAndToggleRequireUnassignedClip(t *testing.T) {
	items := NewItems()
	if err := items.InitClip("capture.mxfp", 100, source("000123", 1)); err != nil {
		t.Fatalf("InitClip: %v", err)
	}
	assigned := items.Snapshot()[0].ID
	if err := items.MoveItemDown(assigned); err == nil {
		t.Fatal("moved an item with an assigned clip")
	}
	if err := items.DisableItem(assigned); err == nil {
		t.Fatal("disabled an item with an assigned clip")
	}

	planned, err := items.AddItem(source("000123", 2), false)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := items.MoveItemUp(planned); err != nil {
		t.Fatalf("MoveItemUp: %v", err)
	}
	if items.Snapshot()[0].ID != planned {
		t.Fatal("planned item did not move")
	}
	if err := items.MoveItemUp(planned); err == nil {
		t.Fatal("moved past the list edge")
	}
	if err := items.DisableItem(planned); err != nil {
		t.Fatalf("DisableItem: %v", err)
	}
	if err := items.EnableItem(planned); err != nil {
		t.Fatalf("EnableItem: %v", err)
	}
}

func TestReadyForChunking(t *testing.T) {
	items := NewItems()
	if items.ReadyForChunking() {
		t.Fatal("empty list reported ready")
	}
	if err := items.InitClip("capture.mxfp", 500, source("000123", 1)); err != nil {
		t.Fatalf("InitClip: %v", err)
	}
	if !items.ReadyForChunking() {
		t.Fatal("fully assigned list not ready")
	}

	// A planned-but-undecided item blocks chunking; disabling it unblocks.
	planned, err := items.AddItem(source("000123", 2), false)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if items.ReadyForChunking() {
		t.Fatal("undecided item did not block chunking")
	}
	if err := items.DisableItem(planned); err != nil {
		t.Fatalf("DisableItem: %v", err)
	}
	if !items.ReadyForChunking() {
		t.Fatal("disabled leftover still blocks chunking")
	}
}

func TestLockBlocksMutation(t *testing.T) {
	items := NewItems()
	if err := items.InitClip("capture.mxfp", 500, source("000123", 1)); err != nil {
		t.Fatalf("InitClip: %v", err)
	}
	items.Lock()
	if _, err := items.MarkItemStart(100, source("000123", 2), false); err != ErrItemsLocked {
		t.Fatalf("MarkItemStart after lock: %v", err)
	}
	id := items.Snapshot()[0].ID
	if err := items.ClearItem(id); err != ErrItemsLocked {
		t.Fatalf("ClearItem after lock: %v", err)
	}
	// Chunking progress reporting still lands.
	items.setChunkedFilename(id, "LTA00012301.mxf")
	if got := items.Snapshot()[0].ChunkedFilename; got != "LTA00012301.mxf" {
		t.Fatalf("chunked filename = %q", got)
	}
}

func TestChangeCountersSeparateConcerns(t *testing.T) {
	items := NewItems()
	if err := items.InitClip("capture.mxfp", 500, source("000123", 1)); err != nil {
		t.Fatalf("InitClip: %v", err)
	}
	if _, err := items.MarkItemStart(200, source("000123", 2), false); err != nil {
		t.Fatalf("MarkItemStart: %v", err)
	}
	clips := items.ClipChangeCount()
	sources := items.SourceChangeCount()

	// A pure enablement toggle on an unassigned item moves only the source
	// counter.
	planned, err := items.AddItem(source("000123", 3), false)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := items.DisableItem(planned); err != nil {
		t.Fatalf("DisableItem: %v", err)
	}
	if items.ClipChangeCount() != clips {
		t.Fatal("clip counter moved without a clip mutation")
	}
	if items.SourceChangeCount() <= sources {
		t.Fatal("source counter did not move")
	}
}
