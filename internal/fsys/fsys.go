// Package fsys wraps the filesystem operations the cache needs behind a
// small interface, plus a directory watcher that feeds the cache change
// events for files added or removed by other processes.
package fsys

import (
	"fmt"
	"os"
	"sort"
)

// FileStore is the filesystem surface the cache mutates through. Only the
// operations the cache actually performs are included, so tests can swap in
// a failing implementation.
type FileStore interface {
	// Stat reports whether path exists and its size in bytes.
	Stat(path string) (exists bool, size int64, err error)
	Rename(from, to string) error
	Remove(path string) error
	MkdirAll(path string) error
	// Create makes a zero-byte file, failing if the parent is missing.
	Create(path string) error
	// List returns the names (not paths) of regular files directly inside
	// dir, sorted ascending.
	List(dir string) ([]string, error)
}

// OSFileStore implements FileStore against the real filesystem.
type OSFileStore struct{}

// NewOSFileStore returns a FileStore backed by the os package.
func NewOSFileStore() *OSFileStore {
	return &OSFileStore{}
}

func (*OSFileStore) Stat(path string) (bool, int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return true, info.Size(), nil
}

func (*OSFileStore) Rename(from, to string) error {
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	return nil
}

func (*OSFileStore) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (*OSFileStore) MkdirAll(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

func (*OSFileStore) Create(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func (*OSFileStore) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
