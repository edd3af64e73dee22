package testsupport

import (
	"path/filepath"
	"testing"

	"tapearc/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.BrowseDir = filepath.Join(base, "browse")
	cfg.Paths.PSEDir = filepath.Join(base, "pse")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Recorder.Name = "test-recorder"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithExportCaps overrides the export batch caps in GiB and file count.
func WithExportCaps(maxGiB, minGiB, maxFiles int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Export.MaxBatchGiB = maxGiB
		cfg.Export.MinBatchGiB = minGiB
		cfg.Export.MaxFiles = maxFiles
	}
}
