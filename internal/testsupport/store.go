package testsupport

import (
	"context"
	"testing"

	"tapearc/internal/config"
	"tapearc/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	db, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// NewSession creates a recording session row for tests.
func NewSession(t testing.TB, db *store.Store, comments string) *store.SessionRow {
	t.Helper()

	session, err := db.CreateSession(context.Background(), comments)
	if err != nil {
		t.Fatalf("store.CreateSession: %v", err)
	}
	return session
}

// NewDestination creates a hard-disk destination row for tests.
func NewDestination(t testing.TB, db *store.Store, sessionID int64, filename string) *store.DestinationRow {
	t.Helper()

	dest := &store.DestinationRow{
		SessionID:    sessionID,
		Kind:         store.DestHardDisk,
		Filename:     filename,
		IngestFormat: "D10-50",
		Duration:     -1,
	}
	if err := db.CreateDestination(context.Background(), dest); err != nil {
		t.Fatalf("store.CreateDestination: %v", err)
	}
	return dest
}
