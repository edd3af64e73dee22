package cache

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"tapearc/internal/mxf"
)

// CompleteFilename builds a final artifact filename from the source base
// name, the two-digit recording instance, and the container suffix.
func CompleteFilename(baseName string, instance int, suffix string) string {
	return fmt.Sprintf("%s%02d%s", baseName, instance, suffix)
}

// PageFilename builds the temporary page-file name for one page of a
// multi-item capture.
func PageFilename(baseName string, page int) string {
	return baseName + "__" + strconv.Itoa(page) + mxf.PageSuffix
}

// pageBase reports whether filename follows the page-file pattern and, if
// so, returns its base name.
func pageBase(filename string) (string, bool) {
	rest, ok := strings.CutSuffix(filename, mxf.PageSuffix)
	if !ok {
		return "", false
	}
	idx := strings.LastIndex(rest, "__")
	if idx < 0 {
		return "", false
	}
	if _, err := strconv.Atoi(rest[idx+2:]); err != nil {
		return "", false
	}
	return rest[:idx], true
}

func (c *Cache) mainPath(name string) string {
	return filepath.Join(c.opts.Directory, name)
}

func (c *Cache) stagingPath(name string) string {
	return filepath.Join(c.StagingDir(), name)
}
