package recording

import (
	"errors"
	"fmt"
	"sync"

	"tapearc/internal/store"
)

// ErrItemsLocked indicates a mutation arrived after chunking locked the
// item list.
var ErrItemsLocked = errors.New("recording: item list is locked")

// Clip is one item's span within the captured stream. Duration stays -1
// until the span has actually been assigned.
type Clip struct {
	Filename      string
	StartPosition int64
	Duration      int64
}

// Item is one unit within a recording session: a catalogued tape item or a
// filler junk span.
type Item struct {
	ID         int64
	IsDisabled bool
	IsJunk     bool
	Source     store.SourceItem
	Clip       Clip
	// ChunkedFilename is the final per-item filename, set once chunking
	// has produced the item's outputs.
	ChunkedFilename string
}

func (i *Item) assigned() bool { return i.Clip.Duration >= 0 }

// Items is the ordered aggregate of a session's recording items. Two
// monotonic counters let pollers distinguish ordering changes from clip
// boundary changes without diffing the whole list.
type Items struct {
	mu     sync.Mutex
	items  []*Item
	nextID int64
	locked bool

	clipChanges   uint64
	sourceChanges uint64
}

// NewItems returns an empty aggregate. InitClip seeds the first item once
// the capture's combined span is known.
func NewItems() *Items {
	return &Items{nextID: 1}
}

// AddItem appends a planned item with no assigned span yet. Unassigned
// items can be reordered and disabled until a span lands on them.
func (l *Items) AddItem(source store.SourceItem, isJunk bool) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return 0, ErrItemsLocked
	}
	item := &Item{
		ID:     l.allocID(),
		IsJunk: isJunk,
		Source: source,
		Clip:   Clip{Duration: -1},
	}
	l.items = append(l.items, item)
	l.sourceChanges++
	return item.ID, nil
}

// InitClip assigns the whole captured span to the first item, creating it
// if the aggregate is empty. Called once when the capture stops.
func (l *Items) InitClip(filename string, totalFrames int64, source store.SourceItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	clip := Clip{Filename: filename, StartPosition: 0, Duration: totalFrames}
	if len(l.items) == 0 {
		l.items = append(l.items, &Item{ID: l.allocID(), Source: source, Clip: clip})
	} else {
		if l.items[0].assigned() {
			return errors.New("recording: clip already initialized")
		}
		l.items[0].Clip = clip
	}
	l.clipChanges++
	l.sourceChanges++
	return nil
}

// MarkItemStart splits the item whose span contains position at that
// absolute position: the item keeps the head span and a new item carrying
// the tail span is inserted immediately after it. Returns the new item's
// id.
func (l *Items) MarkItemStart(position int64, source store.SourceItem, isJunk bool) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return 0, ErrItemsLocked
	}
	for idx, item := range l.items {
		if !item.assigned() {
			continue
		}
		start := item.Clip.StartPosition
		end := start + item.Clip.Duration
		if position <= start || position >= end {
			continue
		}
		tail := &Item{
			ID:     l.allocID(),
			IsJunk: isJunk,
			Source: source,
			Clip: Clip{
				Filename:      item.Clip.Filename,
				StartPosition: position,
				Duration:      end - position,
			},
		}
		item.Clip.Duration = position - start
		l.items = append(l.items[:idx+1], append([]*Item{tail}, l.items[idx+1:]...)...)
		l.clipChanges++
		l.sourceChanges++
		return tail.ID, nil
	}
	return 0, fmt.Errorf("recording: no assigned span contains position %d", position)
}

// ClearItem merges an item's span back into its predecessor and removes
// the item. Only splits can be cleared: the predecessor must hold the
// directly preceding span of the same capture.
func (l *Items) ClearItem(id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return ErrItemsLocked
	}
	idx := l.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("recording: unknown item %d", id)
	}
	if idx == 0 {
		return errors.New("recording: first item has no predecessor to merge into")
	}
	item := l.items[idx]
	prev := l.items[idx-1]
	if !item.assigned() || !prev.assigned() {
		return errors.New("recording: clear requires adjacent assigned spans")
	}
	if prev.Clip.Filename != item.Clip.Filename ||
		prev.Clip.StartPosition+prev.Clip.Duration != item.Clip.StartPosition {
		return errors.New("recording: spans are not adjacent")
	}
	prev.Clip.Duration += item.Clip.Duration
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	l.clipChanges++
	l.sourceChanges++
	return nil
}

// MoveItemUp swaps an unassigned item with its predecessor.
func (l *Items) MoveItemUp(id int64) error {
	return l.move(id, -1)
}

// MoveItemDown swaps an unassigned item with its successor.
func (l *Items) MoveItemDown(id int64) error {
	return l.move(id, 1)
}

func (l *Items) move(id int64, delta int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return ErrItemsLocked
	}
	idx := l.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("recording: unknown item %d", id)
	}
	if l.items[idx].assigned() {
		return errors.New("recording: cannot reorder an item with an assigned clip")
	}
	other := idx + delta
	if other < 0 || other >= len(l.items) {
		return errors.New("recording: item already at list edge")
	}
	l.items[idx], l.items[other] = l.items[other], l.items[idx]
	l.sourceChanges++
	return nil
}

// DisableItem marks an unassigned item as excluded from chunking.
func (l *Items) DisableItem(id int64) error {
	return l.setDisabled(id, true)
}

// EnableItem re-includes a previously disabled item.
func (l *Items) EnableItem(id int64) error {
	return l.setDisabled(id, false)
}

func (l *Items) setDisabled(id int64, disabled bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return ErrItemsLocked
	}
	idx := l.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("recording: unknown item %d", id)
	}
	if l.items[idx].assigned() {
		return errors.New("recording: cannot toggle an item with an assigned clip")
	}
	if l.items[idx].IsDisabled != disabled {
		l.items[idx].IsDisabled = disabled
		l.sourceChanges++
	}
	return nil
}

// Lock freezes the list against further mutation, taken on entry to
// chunking.
func (l *Items) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = true
}

// ReadyForChunking reports whether every item either has an assigned span
// or is disabled. A still-undecided item anywhere in the list blocks
// chunking.
func (l *Items) ReadyForChunking() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return false
	}
	for _, item := range l.items {
		if !item.assigned() && !item.IsDisabled {
			return false
		}
	}
	return true
}

// TotalDuration sums every assigned span, junk included.
func (l *Items) TotalDuration() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, item := range l.items {
		if item.assigned() {
			total += item.Clip.Duration
		}
	}
	return total
}

// Snapshot returns a copy of the current list in order.
func (l *Items) Snapshot() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Item, len(l.items))
	for i, item := range l.items {
		out[i] = *item
	}
	return out
}

// ClipChangeCount bumps whenever clip boundaries change.
func (l *Items) ClipChangeCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clipChanges
}

// SourceChangeCount bumps whenever ordering, membership, or enablement
// changes.
func (l *Items) SourceChangeCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sourceChanges
}

// setChunkedFilename records the final output filename chunking produced
// for an item. Allowed while locked.
func (l *Items) setChunkedFilename(id int64, filename string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexOf(id)
	if idx < 0 {
		return
	}
	l.items[idx].ChunkedFilename = filename
	l.sourceChanges++
}

func (l *Items) indexOf(id int64) int {
	for i, item := range l.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (l *Items) allocID() int64 {
	id := l.nextID
	l.nextID++
	return id
}
