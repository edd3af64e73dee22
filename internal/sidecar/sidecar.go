// Package sidecar writes the small text files that accompany browse
// copies: a descriptive info file and a per-frame timecode listing.
package sidecar

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"tapearc/internal/mxf"
)

// WriteInfo writes the descriptive info sidecar, replacing any previous
// contents. Chunking rewrites it once per item as metadata firms up.
func WriteInfo(path string, info mxf.InfaxData) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create info sidecar: %w", err)
	}
	w := bufio.NewWriter(f)
	lines := []struct{ key, value string }{
		{"spool", info.SpoolNumber},
		{"item", strconv.Itoa(info.ItemNumber)},
		{"programme", info.ProgrammeNumber},
		{"magazine", info.MagazinePrefix},
		{"production", info.ProductionCode},
		{"title", info.ProgrammeTitle},
		{"format", info.Format},
		{"duration", strconv.FormatInt(info.DurationFrames, 10)},
	}
	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%s: %s\n", line.key, line.value); err != nil {
			_ = f.Close()
			return fmt.Errorf("write info sidecar: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush info sidecar: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close info sidecar: %w", err)
	}
	return nil
}

// TimecodeFile accumulates one line per frame: the running count-from-start
// timecode alongside the frame's embedded VITC and LTC readings.
type TimecodeFile struct {
	f *os.File
	w *bufio.Writer
}

// CreateTimecode opens a timecode sidecar for writing, truncating any
// previous file.
func CreateTimecode(path string) (*TimecodeFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create timecode sidecar: %w", err)
	}
	return &TimecodeFile{f: f, w: bufio.NewWriter(f)}, nil
}

// Append records one frame's three timecode readings.
func (t *TimecodeFile) Append(ctc, vitc, ltc mxf.Timecode) error {
	if _, err := fmt.Fprintf(t.w, "%s %s %s\n", ctc, vitc, ltc); err != nil {
		return fmt.Errorf("append timecode: %w", err)
	}
	return nil
}

// Close flushes and closes the sidecar.
func (t *TimecodeFile) Close() error {
	if err := t.w.Flush(); err != nil {
		_ = t.f.Close()
		return fmt.Errorf("flush timecode sidecar: %w", err)
	}
	if err := t.f.Close(); err != nil {
		return fmt.Errorf("close timecode sidecar: %w", err)
	}
	return nil
}
