package cache

import (
	"context"
	"errors"
	"fmt"

	"tapearc/internal/logging"
	"tapearc/internal/store"
	"tapearc/internal/translock"
)

// reconcileStats counts the corrections a reconciliation pass made. A
// second pass over an already-consistent cache reports all zeros.
type reconcileStats struct {
	stagingPurged int
	duplicateRows int
	danglingRows  int
	orphanFiles   int
}

// reconcileLocked re-establishes the membership invariant from scratch:
// persistence rows and directory contents are cross-checked, duplicates and
// dangling rows corrected unilaterally. Only the write owner corrects the
// database; read-only views observe and never delete, since a row without a
// file in the main directory may be the owner's in-flight staging write.
// Caller holds the items mutex.
func (c *Cache) reconcileLocked(ctx context.Context) (reconcileStats, error) {
	var stats reconcileStats
	guard := c.deferStatusUpdate()
	defer guard.run()

	// In-flight writes from a previous process are unrecoverable; purge
	// the staging directory so they can never surface as finished
	// artifacts. Only the write owner touches staging.
	if c.opts.WriteOwner {
		if err := c.fs.MkdirAll(c.StagingDir()); err != nil {
			guard.disarm()
			return stats, err
		}
		leftovers, err := c.fs.List(c.StagingDir())
		if err != nil {
			guard.disarm()
			return stats, err
		}
		for _, name := range leftovers {
			c.logger.Warn("purging stale staging file",
				logging.Args(logging.String("filename", name))...)
			if err := c.fs.Remove(c.stagingPath(name)); err != nil {
				guard.disarm()
				return stats, err
			}
			stats.stagingPurged++
		}
	}

	row, err := c.db.LoadCache(ctx, c.opts.RecorderName, c.opts.Directory)
	if errors.Is(err, store.ErrNotFound) {
		if !c.opts.WriteOwner {
			guard.disarm()
			return stats, fmt.Errorf("no cache record for %s at %s", c.opts.RecorderName, c.opts.Directory)
		}
		row, err = c.db.CreateCache(ctx, c.opts.RecorderName, c.opts.Directory)
	}
	if err != nil {
		guard.disarm()
		return stats, err
	}
	c.row = row

	rows, err := c.db.CacheItems(ctx, row.ID)
	if err != nil {
		guard.disarm()
		return stats, err
	}

	// A duplicate filename means the earlier file was silently overwritten
	// on disk; keep the row with the later session timestamp. Exactly
	// equal timestamps keep the later insert.
	byName := make(map[string]*store.CacheItemRow, len(rows))
	for _, itemRow := range rows {
		existing, ok := byName[itemRow.Filename]
		if !ok {
			byName[itemRow.Filename] = itemRow
			continue
		}
		keep, drop := itemRow, existing
		if existing.SessionCreatedAt.After(itemRow.SessionCreatedAt) {
			keep, drop = existing, itemRow
		} else if existing.SessionCreatedAt.Equal(itemRow.SessionCreatedAt) && existing.ID > itemRow.ID {
			keep, drop = existing, itemRow
		}
		byName[itemRow.Filename] = keep
		if !c.opts.WriteOwner {
			continue
		}
		c.logger.Warn("duplicate cache item filename, dropping older row",
			logging.Args(
				logging.String("filename", itemRow.Filename),
				logging.Int64("kept_row", keep.ID),
				logging.Int64("dropped_row", drop.ID),
			)...)
		if _, err := c.db.DeleteCacheItem(ctx, drop.ID); err != nil {
			guard.disarm()
			return stats, err
		}
		stats.duplicateRows++
	}

	onDisk, err := c.fs.List(c.opts.Directory)
	if err != nil {
		guard.disarm()
		return stats, err
	}

	c.items = nil
	c.creating = nil
	matched := make(map[string]bool, len(byName))
	for _, name := range onDisk {
		if name == translock.LockFileName {
			continue
		}
		itemRow, ok := byName[name]
		if !ok {
			// Not deleted: manual intervention is assumed for files the
			// database has never heard of.
			c.logger.Warn("unknown orphan file in cache directory",
				logging.Args(logging.String("filename", name))...)
			stats.orphanFiles++
			continue
		}
		matched[name] = true
		c.items = append(c.items, &Item{Row: itemRow})
	}

	// Surviving rows with no file on disk are stale pointers. Excluded from
	// membership either way, but only the write owner deletes them.
	for name, itemRow := range byName {
		if matched[name] {
			continue
		}
		if !c.opts.WriteOwner {
			c.logger.Debug("cache row without file, left for the write owner",
				logging.Args(
					logging.String("filename", name),
					logging.Int64("row", itemRow.ID),
				)...)
			continue
		}
		c.logger.Warn("dropping cache row for vanished file",
			logging.Args(
				logging.String("filename", name),
				logging.Int64("row", itemRow.ID),
			)...)
		if _, err := c.db.DeleteCacheItem(ctx, itemRow.ID); err != nil {
			guard.disarm()
			return stats, err
		}
		stats.danglingRows++
	}

	return stats, nil
}
