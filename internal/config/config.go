package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for the recorder.
type Paths struct {
	CacheDir  string `toml:"cache_dir"`
	BrowseDir string `toml:"browse_dir"`
	PSEDir    string `toml:"pse_dir"`
	LogDir    string `toml:"log_dir"`
}

// Recorder contains settings identifying this recorder and its disk policy.
type Recorder struct {
	Name           string `toml:"name"`
	MinDiskGiB     int    `toml:"min_disk_gib"`
	PageSizeFrames int64  `toml:"page_size_frames"`
}

// Capture contains SDI capture settings.
type Capture struct {
	Device        string `toml:"device"`
	IngestFormat  string `toml:"ingest_format"`
	BrowseEnabled bool   `toml:"browse_enabled"`
	PSEEnabled    bool   `toml:"pse_enabled"`
}

// VTR contains source and backup deck settings.
type VTR struct {
	SourceDevice  string `toml:"source_device"`
	BackupDevice  string `toml:"backup_device"`
	BackupEnabled bool   `toml:"backup_enabled"`
}

// Export contains tape-export batch selection settings.
type Export struct {
	MaxBatchGiB int    `toml:"max_batch_gib"`
	MinBatchGiB int    `toml:"min_batch_gib"`
	MaxFiles    int    `toml:"max_files"`
	KeepFiles   bool   `toml:"keep_files"`
	LTFSMount   string `toml:"ltfs_mount"`
}

// Notify contains ntfy push notification settings. Notifications are
// disabled when no topic is configured.
type Notify struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	NtfyRequestTimeout int    `toml:"ntfy_request_timeout"`
}

// Workflow contains daemon timing and watch-readiness settings.
type Workflow struct {
	WatchReadyTimeout int `toml:"watch_ready_timeout"`
	EventRetryCount   int `toml:"event_retry_count"`
	EventRetryDelayMS int `toml:"event_retry_delay_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tapearc.
//
// Sections by subsystem:
//   - Paths: cache, browse-copy, PSE-report and log directories
//   - Recorder: recorder identity, disk-space safety margin, page sizing
//   - Capture: SDI capture device and ingest format
//   - VTR: source and backup deck devices
//   - Export: tape-export batch caps
//   - Notify: ntfy push notifications
//   - Workflow: watch readiness and event retry tuning
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Recorder Recorder `toml:"recorder"`
	Capture  Capture  `toml:"capture"`
	VTR      VTR      `toml:"vtr"`
	Export   Export   `toml:"export"`
	Notify   Notify   `toml:"notify"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tapearc/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tapearc.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the recorder needs to operate.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.BrowseDir, c.Paths.PSEDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MinDiskBytes returns the free-space safety margin in bytes.
func (c *Config) MinDiskBytes() uint64 {
	if c.Recorder.MinDiskGiB <= 0 {
		return 0
	}
	return uint64(c.Recorder.MinDiskGiB) * 1024 * 1024 * 1024
}

// MaxBatchBytes returns the export batch size cap in bytes.
func (c *Config) MaxBatchBytes() int64 {
	return int64(c.Export.MaxBatchGiB) * 1024 * 1024 * 1024
}

// MinBatchBytes returns the export batch size floor in bytes.
func (c *Config) MinBatchBytes() int64 {
	return int64(c.Export.MinBatchGiB) * 1024 * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
