package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"tapearc/internal/cache"
	"tapearc/internal/config"
	"tapearc/internal/daemon"
	"tapearc/internal/fsys"
	"tapearc/internal/logging"
	"tapearc/internal/recording"
	"tapearc/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	db, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Args(logging.Error(err))...)
		return
	}
	defer db.Close()

	c := cache.New(cache.OptionsFromConfig(cfg), fsys.NewOSFileStore(), db, logger)
	d, err := daemon.New(cfg, daemon.Deps{
		DB:    db,
		Cache: c,
		// Capture, VTR, and replay drivers plug in here per deck setup.
		Session: recording.Deps{Cache: c, DB: db, Logger: logger},
		Logger:  logger,
	})
	if err != nil {
		logger.Error("create daemon", logging.Args(logging.Error(err))...)
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Args(logging.Error(err))...)
		return
	}

	<-ctx.Done()
	logger.Info("tapearcd shutting down")
	d.Stop()
}
