package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRecorder()
	c.normalizeCapture()
	c.normalizeVTR()
	if err := c.normalizeExport(); err != nil {
		return err
	}
	c.normalizeNotify()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.BrowseDir, err = expandPath(c.Paths.BrowseDir); err != nil {
		return fmt.Errorf("paths.browse_dir: %w", err)
	}
	if c.Paths.PSEDir, err = expandPath(c.Paths.PSEDir); err != nil {
		return fmt.Errorf("paths.pse_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRecorder() {
	c.Recorder.Name = strings.TrimSpace(c.Recorder.Name)
	if c.Recorder.Name == "" {
		c.Recorder.Name = defaultRecorderName
	}
	if c.Recorder.PageSizeFrames <= 0 {
		c.Recorder.PageSizeFrames = defaultPageSizeFrames
	}
}

func (c *Config) normalizeCapture() {
	c.Capture.Device = strings.TrimSpace(c.Capture.Device)
	c.Capture.IngestFormat = strings.TrimSpace(c.Capture.IngestFormat)
	if c.Capture.IngestFormat == "" {
		c.Capture.IngestFormat = defaultIngestFormat
	}
}

func (c *Config) normalizeVTR() {
	c.VTR.SourceDevice = strings.TrimSpace(c.VTR.SourceDevice)
	c.VTR.BackupDevice = strings.TrimSpace(c.VTR.BackupDevice)
}

func (c *Config) normalizeExport() error {
	c.Export.LTFSMount = strings.TrimSpace(c.Export.LTFSMount)
	if c.Export.LTFSMount == "" {
		return nil
	}
	expanded, err := expandPath(c.Export.LTFSMount)
	if err != nil {
		return fmt.Errorf("export.ltfs_mount: %w", err)
	}
	c.Export.LTFSMount = expanded
	return nil
}

func (c *Config) normalizeNotify() {
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if c.Notify.NtfyRequestTimeout <= 0 {
		c.Notify.NtfyRequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.WatchReadyTimeout <= 0 {
		c.Workflow.WatchReadyTimeout = defaultWatchReadyTimeout
	}
	if c.Workflow.EventRetryCount <= 0 {
		c.Workflow.EventRetryCount = defaultEventRetryCount
	}
	if c.Workflow.EventRetryDelayMS <= 0 {
		c.Workflow.EventRetryDelayMS = defaultEventRetryDelayMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
