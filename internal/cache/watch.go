package cache

import (
	"context"
	"time"

	"tapearc/internal/logging"
	"tapearc/internal/translock"
)

// handleCreated absorbs a watch-detected file appearance. The delay-and-retry
// sequence runs on its own goroutine so a file with a slow or missing
// persistence row never holds up delivery of events for other files.
func (c *Cache) handleCreated(name string) {
	if ignoreWatchName(name) {
		return
	}
	go c.absorbCreated(name)
}

// absorbCreated waits out the initial settle delay, then retries the lookup a
// bounded number of times before the file is given up as an orphan until the
// next reconciliation. processItemAdded is idempotent, so duplicate events
// for the same name are harmless.
func (c *Cache) absorbCreated(name string) {
	ctx := context.Background()

	time.Sleep(c.opts.EventRetryInitial)
	for attempt := 0; attempt <= c.opts.EventRetryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(c.opts.EventRetryDelay)
		}
		if c.processItemAdded(ctx, name) {
			return
		}
	}
	c.logger.Warn("file appeared with no matching record, giving up",
		logging.Args(
			logging.String("filename", name),
			logging.Int("attempts", c.opts.EventRetryCount+1),
		)...)
}

func (c *Cache) handleRemoved(name string) {
	if ignoreWatchName(name) {
		return
	}
	c.processItemRemoved(context.Background(), name)
}

func (c *Cache) handleDirRemoved() {
	c.logger.Error("cache directory removed out from under the watch",
		logging.Args(logging.String("directory", c.opts.Directory))...)
}

func ignoreWatchName(name string) bool {
	return name == StagingDirName || name == translock.LockFileName
}
