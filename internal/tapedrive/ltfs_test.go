package tapedrive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tapearc/internal/logging"
)

func writeSource(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func waitStore(t *testing.T, d *LTFSDrive) StoreStats {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if d.StoreCompleted() {
			return d.StoreStats()
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("store never completed")
	return StoreStats{}
}

func TestLTFSDriveTapeState(t *testing.T) {
	missing := NewLTFSDrive(filepath.Join(t.TempDir(), "nope"), logging.NewNop())
	if got := missing.GeneralStats().TapeState; got != TapeNotPresent {
		t.Fatalf("missing mount state = %v", got)
	}

	mounted := NewLTFSDrive(t.TempDir(), logging.NewNop())
	if got := mounted.GeneralStats().TapeState; got != TapeReady {
		t.Fatalf("mounted state = %v", got)
	}
}

func TestLTFSDriveStoresSequencedCopies(t *testing.T) {
	srcDir := t.TempDir()
	mount := t.TempDir()
	first := writeSource(t, srcDir, "first.mxf", 8<<20)
	second := writeSource(t, srcDir, "second.mxf", 100)

	d := NewLTFSDrive(mount, logging.NewNop())
	if !d.StoreToTape([]string{first, second}, "LTO0042") {
		t.Fatal("drive rejected store")
	}
	// Unless the copy already won the race, the drive is busy and refuses
	// a second store.
	if !d.StoreCompleted() {
		if d.GeneralStats().TapeState != TapeBusy {
			t.Fatal("drive not busy during store")
		}
		if d.StoreToTape([]string{first}, "LTO0042") {
			t.Fatal("concurrent store accepted")
		}
	}

	stats := waitStore(t, d)
	if stats.State != StoreCompleted {
		t.Fatalf("state = %v", stats.State)
	}
	if stats.Offset != 2 {
		t.Fatalf("offset = %d", stats.Offset)
	}

	for i, src := range []string{first, second} {
		dst := filepath.Join(mount, []string{"LTO004201.mxf", "LTO004202.mxf"}[i])
		want, err := os.Stat(src)
		if err != nil {
			t.Fatalf("stat source: %v", err)
		}
		got, err := os.Stat(dst)
		if err != nil {
			t.Fatalf("tape copy missing: %v", err)
		}
		if got.Size() != want.Size() {
			t.Fatalf("copy size = %d, want %d", got.Size(), want.Size())
		}
	}
	if d.GeneralStats().TapeState != TapeReady {
		t.Fatal("drive did not return to ready")
	}
}

func TestLTFSDriveMissingSourceFails(t *testing.T) {
	mount := t.TempDir()
	d := NewLTFSDrive(mount, logging.NewNop())
	ok := writeSource(t, t.TempDir(), "ok.mxf", 64)

	if !d.StoreToTape([]string{ok, filepath.Join(mount, "absent.mxf")}, "LTO0001") {
		t.Fatal("drive rejected store")
	}
	stats := waitStore(t, d)
	if stats.State != StoreFailed {
		t.Fatalf("state = %v", stats.State)
	}
	if stats.Offset != 1 {
		t.Fatalf("failed at offset %d", stats.Offset)
	}
	// The first file made it before the failure.
	if _, err := os.Stat(filepath.Join(mount, "LTO000101.mxf")); err != nil {
		t.Fatalf("completed copy missing: %v", err)
	}
}

func TestLTFSDriveAbortRemovesPartialFile(t *testing.T) {
	srcDir := t.TempDir()
	mount := t.TempDir()
	big := writeSource(t, srcDir, "big.mxf", 8<<20)

	d := NewLTFSDrive(mount, logging.NewNop())
	if !d.StoreToTape([]string{big}, "LTO0002") {
		t.Fatal("drive rejected store")
	}
	aborted := d.AbortStore()
	stats := waitStore(t, d)

	// The abort races the copy: it may land mid-file or lose outright.
	// Either way the tape never keeps a partial file.
	switch stats.State {
	case StoreFailed:
		if !aborted {
			t.Fatal("store failed without an abort")
		}
		if _, err := os.Stat(filepath.Join(mount, "LTO000201.mxf")); err == nil {
			t.Fatal("partial tape file left behind")
		}
	case StoreCompleted:
		info, err := os.Stat(filepath.Join(mount, "LTO000201.mxf"))
		if err != nil {
			t.Fatalf("completed copy missing: %v", err)
		}
		if info.Size() != 8<<20 {
			t.Fatalf("completed copy truncated (%d bytes)", info.Size())
		}
	default:
		t.Fatalf("state after abort = %v", stats.State)
	}
}
