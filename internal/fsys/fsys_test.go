package fsys

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tapearc/internal/logging"
)

func TestOSFileStoreStat(t *testing.T) {
	fs := NewOSFileStore()
	dir := t.TempDir()

	exists, _, err := fs.Stat(filepath.Join(dir, "missing.mxf"))
	if err != nil {
		t.Fatalf("Stat missing: %v", err)
	}
	if exists {
		t.Fatal("missing file reported as existing")
	}

	path := filepath.Join(dir, "present.mxf")
	if err := os.WriteFile(path, []byte("abcd"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	exists, size, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !exists || size != 4 {
		t.Fatalf("Stat = (%v, %d)", exists, size)
	}
}

func TestOSFileStoreCreateRenameRemove(t *testing.T) {
	fs := NewOSFileStore()
	dir := t.TempDir()
	staging := filepath.Join(dir, "creating")
	if err := fs.MkdirAll(staging); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	src := filepath.Join(staging, "a.mxf")
	if err := fs.Create(src); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dst := filepath.Join(dir, "a.mxf")
	if err := fs.Rename(src, dst); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("source still exists after rename")
	}
	if err := fs.Remove(dst); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := fs.Remove(dst); err == nil {
		t.Fatal("expected error removing missing file")
	}
}

func TestOSFileStoreListSkipsDirectories(t *testing.T) {
	fs := NewOSFileStore()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "creating"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"b.mxf", "a.mxf"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	names, err := fs.List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "a.mxf" || names[1] != "b.mxf" {
		t.Fatalf("List = %v", names)
	}
}

func TestDirWatcherDeliversCreateAndRemove(t *testing.T) {
	dir := t.TempDir()
	created := make(chan string, 8)
	removed := make(chan string, 8)

	watcher := NewDirWatcher(dir, WatchCallbacks{
		OnCreate: func(name string) { created <- name },
		OnRemove: func(name string) { removed <- name },
	}, logging.NewNop())
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.WaitReady(2 * time.Second); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}

	path := filepath.Join(dir, "new.mxf")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case name := <-created:
		if name != "new.mxf" {
			t.Fatalf("create event for %q", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no create event delivered")
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	select {
	case name := <-removed:
		if name != "new.mxf" {
			t.Fatalf("remove event for %q", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no remove event delivered")
	}
}
