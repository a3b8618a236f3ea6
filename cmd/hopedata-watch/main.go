package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"hopedata/internal/config"
	"hopedata/internal/logging"
	"hopedata/internal/pipeline"
	"hopedata/internal/source"
	"hopedata/internal/storage"
	"hopedata/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(cfg.Require("SOURCE", cfg.Source))

	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	must(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := storage.Open()
	must(err)
	defer db.Close()

	policy, err := pipeline.NewPolicy(cfg)
	must(err)
	src, err := source.Open(ctx, cfg, cfg.Source, "")
	must(err)

	normalizer := pipeline.NewNormalizer(policy, pipeline.WithWorkers(cfg.NormalizeWorkers), pipeline.WithLogger(logger))
	svc := pipeline.NewProcessingService(db, normalizer, logger)
	loader := source.NewLoader(src, db, filepath.Join(cfg.OutputDir, "raw"))

	logger.Info("watching source", "source", src.Name(), "interval_sec", cfg.WatchIntervalSec)
	must(watcher.NewService(svc, loader, cfg, logger).Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
