package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRecorder(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.CacheDir == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if c.Paths.BrowseDir == "" {
		return errors.New("paths.browse_dir must be set")
	}
	if c.Paths.PSEDir == "" {
		return errors.New("paths.pse_dir must be set")
	}
	// Browse and PSE copies must survive deletion of the full-quality file,
	// so they cannot share the cache directory.
	if c.Paths.BrowseDir == c.Paths.CacheDir {
		return errors.New("paths.browse_dir must differ from paths.cache_dir")
	}
	if c.Paths.PSEDir == c.Paths.CacheDir {
		return errors.New("paths.pse_dir must differ from paths.cache_dir")
	}
	return nil
}

func (c *Config) validateRecorder() error {
	if c.Recorder.Name == "" {
		return errors.New("recorder.name must be set")
	}
	if c.Recorder.MinDiskGiB < 0 {
		return errors.New("recorder.min_disk_gib must not be negative")
	}
	if c.Recorder.PageSizeFrames <= 0 {
		return errors.New("recorder.page_size_frames must be positive")
	}
	return nil
}

func (c *Config) validateExport() error {
	if c.Export.MaxBatchGiB <= 0 {
		return errors.New("export.max_batch_gib must be positive")
	}
	if c.Export.MinBatchGiB < 0 {
		return errors.New("export.min_batch_gib must not be negative")
	}
	if c.Export.MinBatchGiB >= c.Export.MaxBatchGiB {
		return fmt.Errorf("export.min_batch_gib (%d) must be less than export.max_batch_gib (%d)",
			c.Export.MinBatchGiB, c.Export.MaxBatchGiB)
	}
	if c.Export.MaxFiles <= 0 {
		return errors.New("export.max_files must be positive")
	}
	return nil
}
