package translock

import (
	"path/filepath"
	"testing"
)

func TestAcquireReleaseCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)

	lock := New(path)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !Held(path) {
		t.Fatal("held lock not reported held")
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release unheld: %v", err)
	}
	if Held(path) {
		t.Fatal("released lock still reported held")
	}
}

func TestHeldBeforeAcquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	if Held(path) {
		t.Fatal("fresh lock path reported held")
	}
}
