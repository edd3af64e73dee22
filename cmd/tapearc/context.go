package main

import (
	"context"
	"strings"
	"sync"

	"tapearc/internal/cache"
	"tapearc/internal/config"
	"tapearc/internal/fsys"
	"tapearc/internal/logging"
	"tapearc/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// openCacheView opens the store and a one-shot, read-only reconciled view
// of the recorder's cache. The caller must call the returned cleanup.
func (c *commandContext) openCacheView(ctx context.Context) (*store.Store, *cache.Cache, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := store.Open(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := cache.OptionsFromConfig(cfg)
	opts.WriteOwner = false
	opts.DisableWatch = true
	view := cache.New(opts, fsys.NewOSFileStore(), db, logging.NewNop())
	if err := view.Start(ctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		_ = view.Close()
		_ = db.Close()
	}
	return db, view, cleanup, nil
}
