package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tapearc/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	loaded, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if loaded.Recorder.Name != "tapearc" {
		t.Fatalf("unexpected recorder name %q", loaded.Recorder.Name)
	}
	if !filepath.IsAbs(loaded.Paths.CacheDir) {
		t.Fatalf("cache dir not absolute: %q", loaded.Paths.CacheDir)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
cache_dir = "` + filepath.Join(dir, "cache") + `"
browse_dir = "` + filepath.Join(dir, "browse") + `"
pse_dir = "` + filepath.Join(dir, "pse") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[recorder]
name = "  ingest-a  "
min_disk_gib = 5

[export]
max_batch_gib = 10
min_batch_gib = 1
max_files = 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%q", exists, resolved)
	}
	if cfg.Recorder.Name != "ingest-a" {
		t.Fatalf("recorder name not trimmed: %q", cfg.Recorder.Name)
	}
	if cfg.MinDiskBytes() != 5*1024*1024*1024 {
		t.Fatalf("unexpected min disk bytes %d", cfg.MinDiskBytes())
	}
	if cfg.MaxBatchBytes() <= cfg.MinBatchBytes() {
		t.Fatal("batch byte caps inverted")
	}
}

func TestValidateRejectsBadExportCaps(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"min above max", func(c *config.Config) { c.Export.MinBatchGiB = 500 }, "min_batch_gib"},
		{"zero max files", func(c *config.Config) { c.Export.MaxFiles = 0 }, "max_files"},
		{"browse shares cache", func(c *config.Config) { c.Paths.BrowseDir = c.Paths.CacheDir }, "browse_dir"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[recorder]") {
		t.Fatal("sample config missing recorder section")
	}
}
