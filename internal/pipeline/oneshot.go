package pipeline

import (
	"context"
	"log/slog"

	"hopedata/internal/config"
	"hopedata/internal/source"
	"hopedata/internal/storage"
)

// RunOnce processes a single input (path, URL or sheets:<id>) with a fresh
// in-memory store. inputType may be empty to infer the format.
func RunOnce(ctx context.Context, cfg config.Config, input, inputType, outputPath string, logger *slog.Logger) (ProcessResult, error) {
	policy, err := NewPolicy(cfg)
	if err != nil {
		return ProcessResult{}, err
	}
	src, err := source.Open(ctx, cfg, input, inputType)
	if err != nil {
		return ProcessResult{}, err
	}

	db, err := storage.Open()
	if err != nil {
		return ProcessResult{}, err
	}
	defer db.Close()

	normalizer := NewNormalizer(policy, WithWorkers(cfg.NormalizeWorkers), WithLogger(logger))
	svc := NewProcessingService(db, normalizer, logger)
	return svc.Process(ctx, source.NewLoader(src, nil, ""), outputPath, true)
}
