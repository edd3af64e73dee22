package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tapearc/internal/logging"
	"tapearc/internal/store"
)

// ErrUnknownItem indicates an operation referenced a creating item that was
// never registered. This is a caller-discipline fault, not a recoverable
// condition.
var ErrUnknownItem = errors.New("cache: unknown creating item")

// ContentEntry is one row of a cache contents listing.
type ContentEntry struct {
	DestinationID    int64
	Filename         string
	BrowseFilename   string
	PSEFilename      string
	IngestFormat     string
	Size             int64
	Duration         int64
	SessionID        int64
	SessionCreatedAt time.Time
	SessionStatus    store.SessionStatus
	Source           store.SourceItem
	Creating         bool
}

// RegisterCreatingItem reserves a filename for a file about to be written:
// a zero-byte placeholder appears in the staging subdirectory and a
// persistence row is created. A leftover reservation under the same name is
// forcibly removed with a warning; a finalized item under the same name is
// an error.
func (c *Cache) RegisterCreatingItem(ctx context.Context, dest *store.DestinationRow, session *store.SessionRow, isTemp bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	guard := c.deferStatusUpdate()
	defer guard.run()

	filename := dest.Filename
	if c.findItemLocked(filename) != nil {
		guard.disarm()
		return fmt.Errorf("cache item %q already finalized", filename)
	}
	if existing := c.findCreatingLocked(filename); existing != nil {
		c.logger.Warn("replacing leftover creating item",
			logging.Args(logging.String("filename", filename))...)
		if err := c.removeCreatingLocked(ctx, existing); err != nil {
			guard.disarm()
			return err
		}
	}

	// Disk first: the list mutation only happens once the placeholder
	// exists.
	if err := c.fs.Create(c.stagingPath(filename)); err != nil {
		guard.disarm()
		return err
	}

	row := &store.CacheItemRow{
		CacheID:          c.row.ID,
		DestinationID:    dest.ID,
		Filename:         filename,
		BrowseFilename:   dest.BrowseFilename,
		PSEFilename:      dest.PSEFilename,
		IngestFormat:     dest.IngestFormat,
		Size:             0,
		Duration:         -1,
		SessionID:        session.ID,
		SessionCreatedAt: session.CreatedAt,
		SessionComments:  session.Comments,
		SessionStatus:    session.Status,
		Source:           dest.Source,
		PSEResult:        dest.PSEResult,
	}
	if err := c.db.SaveCacheItem(ctx, row); err != nil {
		guard.disarm()
		_ = c.fs.Remove(c.stagingPath(filename))
		return err
	}
	c.creating = append(c.creating, &CreatingItem{Row: row, IsTemp: isTemp})
	return nil
}

// UpdateCreatingItem refreshes the mutable projection fields of an existing
// reservation from its destination and session records.
func (c *Cache) UpdateCreatingItem(ctx context.Context, dest *store.DestinationRow, session *store.SessionRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	guard := c.deferStatusUpdate()
	defer guard.run()

	creating := c.findCreatingLocked(dest.Filename)
	if creating == nil {
		guard.disarm()
		return fmt.Errorf("%w: %s", ErrUnknownItem, dest.Filename)
	}
	creating.Row.Size = dest.Size
	creating.Row.Duration = dest.Duration
	creating.Row.BrowseFilename = dest.BrowseFilename
	creating.Row.PSEFilename = dest.PSEFilename
	creating.Row.PSEResult = dest.PSEResult
	creating.Row.SessionStatus = session.Status
	creating.Row.SessionComments = session.Comments
	if err := c.db.UpdateCacheItem(ctx, creating.Row); err != nil {
		guard.disarm()
		return err
	}
	return nil
}

// FinaliseCreatingItem promotes a reservation to a finished artifact by
// renaming the staging file into the main directory. If the rename fails
// the item stays in the creating list untouched.
func (c *Cache) FinaliseCreatingItem(ctx context.Context, dest *store.DestinationRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	guard := c.deferStatusUpdate()
	defer guard.run()

	filename := dest.Filename
	idx := c.findCreatingIndexLocked(filename)
	if idx < 0 {
		guard.disarm()
		return fmt.Errorf("%w: %s", ErrUnknownItem, filename)
	}
	creating := c.creating[idx]

	if err := c.fs.Rename(c.stagingPath(filename), c.mainPath(filename)); err != nil {
		guard.disarm()
		return err
	}

	if exists, size, err := c.fs.Stat(c.mainPath(filename)); err == nil && exists {
		creating.Row.Size = size
	}
	creating.Row.Duration = dest.Duration
	if err := c.db.UpdateCacheItem(ctx, creating.Row); err != nil {
		c.logger.Warn("finalized item row update failed",
			logging.Args(logging.String("filename", filename), logging.Error(err))...)
	}

	c.creating = append(c.creating[:idx], c.creating[idx+1:]...)
	c.items = append(c.items, &Item{Row: creating.Row})
	return nil
}

// RemoveCreatingItem drops one reservation: persistence row, staging
// file(s), and the in-memory entry. Browse and PSE copies are never
// deleted here.
func (c *Cache) RemoveCreatingItem(ctx context.Context, filename string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	guard := c.deferStatusUpdate()
	defer guard.run()

	creating := c.findCreatingLocked(filename)
	if creating == nil {
		guard.disarm()
		return fmt.Errorf("%w: %s", ErrUnknownItem, filename)
	}
	if err := c.removeCreatingLocked(ctx, creating); err != nil {
		guard.disarm()
		return err
	}
	return nil
}

// RemoveCreatingItems drops every reservation, used during session abort.
func (c *Cache) RemoveCreatingItems(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	guard := c.deferStatusUpdate()
	defer guard.run()

	if len(c.creating) == 0 {
		guard.disarm()
		return nil
	}
	for len(c.creating) > 0 {
		if err := c.removeCreatingLocked(ctx, c.creating[0]); err != nil {
			return err
		}
	}
	return nil
}

// removeCreatingLocked unlinks the row, deletes the staging file(s) and
// drops the in-memory entry. Page-file reservations delete page 0, 1, 2, …
// until one is missing.
func (c *Cache) removeCreatingLocked(ctx context.Context, creating *CreatingItem) error {
	filename := creating.Row.Filename
	if _, err := c.db.DeleteCacheItem(ctx, creating.Row.ID); err != nil {
		return err
	}

	if base, ok := pageBase(filename); ok {
		for page := 0; ; page++ {
			pagePath := c.stagingPath(PageFilename(base, page))
			exists, _, err := c.fs.Stat(pagePath)
			if err != nil {
				return err
			}
			if !exists {
				break
			}
			if err := c.fs.Remove(pagePath); err != nil {
				return err
			}
		}
	} else {
		exists, _, err := c.fs.Stat(c.stagingPath(filename))
		if err != nil {
			return err
		}
		if exists {
			if err := c.fs.Remove(c.stagingPath(filename)); err != nil {
				return err
			}
		}
	}

	for i, entry := range c.creating {
		if entry == creating {
			c.creating = append(c.creating[:i], c.creating[i+1:]...)
			break
		}
	}
	return nil
}

// RemoveItem deletes a finalized artifact. The persistence unlink happens
// regardless; the return reports whether the on-disk delete succeeded.
func (c *Cache) RemoveItem(ctx context.Context, filename string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	guard := c.deferStatusUpdate()
	defer guard.run()

	idx := -1
	for i, item := range c.items {
		if item.Row.Filename == filename {
			idx = i
			break
		}
	}
	if idx < 0 {
		guard.disarm()
		return false, nil
	}

	if _, err := c.db.DeleteCacheItem(ctx, c.items[idx].Row.ID); err != nil {
		guard.disarm()
		return false, err
	}
	c.items = append(c.items[:idx], c.items[idx+1:]...)

	removed := true
	if err := c.fs.Remove(c.mainPath(filename)); err != nil {
		c.logger.Warn("cache file delete failed",
			logging.Args(logging.String("filename", filename), logging.Error(err))...)
		removed = false
	}
	return removed, nil
}

// RemoveItemByID deletes a finalized artifact by its destination id.
func (c *Cache) RemoveItemByID(ctx context.Context, destinationID int64) (bool, error) {
	name, ok := c.GetItemName(destinationID)
	if !ok {
		return false, nil
	}
	return c.RemoveItem(ctx, name)
}

// processItemAdded absorbs a watch-detected file appearance. Returns false
// when no persistence row is visible yet, in which case the watch handler
// retries after a delay — another process may be mid-transaction.
func (c *Cache) processItemAdded(ctx context.Context, filename string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.row == nil {
		return false
	}
	if c.findItemLocked(filename) != nil || c.findCreatingLocked(filename) != nil {
		return true
	}

	row, err := c.db.FindCacheItem(ctx, c.row.ID, filename)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("cache item lookup failed",
				logging.Args(logging.String("filename", filename), logging.Error(err))...)
		}
		return false
	}

	guard := c.deferStatusUpdate()
	defer guard.run()
	c.items = append(c.items, &Item{Row: row})
	c.logger.Info("absorbed externally added item",
		logging.Args(logging.String("filename", filename))...)
	return true
}

// processItemRemoved absorbs a watch-detected file disappearance. Fires
// both for externally deleted files and, redundantly, for files this
// process removed through its own API; the redundant case is a no-op.
func (c *Cache) processItemRemoved(ctx context.Context, filename string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.row == nil {
		return false
	}
	if _, err := c.db.DeleteCacheItemByName(ctx, c.row.ID, filename); err != nil {
		c.logger.Warn("cache row delete failed",
			logging.Args(logging.String("filename", filename), logging.Error(err))...)
	}

	for i, item := range c.items {
		if item.Row.Filename == filename {
			guard := c.deferStatusUpdate()
			defer guard.run()
			c.items = append(c.items[:i], c.items[i+1:]...)
			c.logger.Info("absorbed external item removal",
				logging.Args(logging.String("filename", filename))...)
			return true
		}
	}
	return false
}

// ItemExists reports whether a finalized item with the filename is present.
func (c *Cache) ItemExists(filename string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findItemLocked(filename) != nil
}

// CreatingItemExists reports whether a reservation with the filename is
// present.
func (c *Cache) CreatingItemExists(filename string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findCreatingLocked(filename) != nil
}

// GetItemName resolves a destination id to its filename.
func (c *Cache) GetItemName(destinationID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.items {
		if item.Row.DestinationID == destinationID {
			return item.Row.Filename, true
		}
	}
	return "", false
}

// ItemsAreKnown reports whether every requested destination id resolves to
// a currently present finalized item. Used as a precondition gate before
// export.
func (c *Cache) ItemsAreKnown(ids []int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		found := false
		for _, item := range c.items {
			if item.Row.DestinationID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// GetTotalSize sums the sizes of the finalized items with the given
// destination ids. Unknown ids contribute nothing.
func (c *Cache) GetTotalSize(ids []int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, id := range ids {
		for _, item := range c.items {
			if item.Row.DestinationID == id {
				total += item.Row.Size
				break
			}
		}
	}
	return total
}

// GetContents returns all finalized items plus non-temporary reservations,
// newest session first, tie-broken by descending item number.
func (c *Cache) GetContents() []ContentEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]ContentEntry, 0, len(c.items)+len(c.creating))
	for _, item := range c.items {
		entries = append(entries, entryFromRow(item.Row, false))
	}
	for _, creating := range c.creating {
		if creating.IsTemp {
			continue
		}
		entries = append(entries, entryFromRow(creating.Row, true))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].SessionCreatedAt.Equal(entries[j].SessionCreatedAt) {
			return entries[i].SessionCreatedAt.After(entries[j].SessionCreatedAt)
		}
		return entries[i].Source.ItemNumber > entries[j].Source.ItemNumber
	})
	return entries
}

func entryFromRow(row *store.CacheItemRow, creating bool) ContentEntry {
	return ContentEntry{
		DestinationID:    row.DestinationID,
		Filename:         row.Filename,
		BrowseFilename:   row.BrowseFilename,
		PSEFilename:      row.PSEFilename,
		IngestFormat:     row.IngestFormat,
		Size:             row.Size,
		Duration:         row.Duration,
		SessionID:        row.SessionID,
		SessionCreatedAt: row.SessionCreatedAt,
		SessionStatus:    row.SessionStatus,
		Source:           row.Source,
		Creating:         creating,
	}
}

func (c *Cache) findItemLocked(filename string) *Item {
	for _, item := range c.items {
		if item.Row.Filename == filename {
			return item
		}
	}
	return nil
}

func (c *Cache) findCreatingLocked(filename string) *CreatingItem {
	for _, creating := range c.creating {
		if creating.Row.Filename == filename {
			return creating
		}
	}
	return nil
}

func (c *Cache) findCreatingIndexLocked(filename string) int {
	for i, creating := range c.creating {
		if creating.Row.Filename == filename {
			return i
		}
	}
	return -1
}
