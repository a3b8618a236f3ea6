package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hopedata/internal"
	"hopedata/internal/report"
	"hopedata/internal/source"
	"hopedata/internal/storage"
)

type ProcessingService struct {
	db         *storage.DB
	normalizer *Normalizer
	logger     *slog.Logger
}

func NewProcessingService(db *storage.DB, normalizer *Normalizer, logger *slog.Logger) *ProcessingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessingService{db: db, normalizer: normalizer, logger: logger}
}

type ProcessResult struct {
	TraceID    string
	SourceName string
	CacheKey   string
	Changed    bool
	Batch      internal.CanonicalBatch
	Views      []report.View
	OutputPath string
}

// Process loads the export behind loader and, when it changed since the
// last committed run or force is set, runs extract, normalize, store and
// report. outputPath may be empty to skip the workbook.
func (s *ProcessingService) Process(ctx context.Context, loader *source.Loader, outputPath string, force bool) (ProcessResult, error) {
	start := time.Now()
	timings := map[string]float64{}
	mark := func(stage string, since time.Time) {
		timings[stage+"Ms"] = float64(time.Since(since).Milliseconds())
	}

	t := time.Now()
	loaded, err := loader.Load(ctx)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("load: %w", err)
	}
	mark("load", t)

	res := ProcessResult{
		TraceID:    uuid.NewString(),
		SourceName: loaded.Payload.Name,
		CacheKey:   loaded.CacheKey,
		Changed:    loaded.Changed,
	}
	logger := s.logger.With("trace_id", res.TraceID, "source", res.SourceName)
	if !loaded.Changed && !force {
		logger.Debug("source unchanged", "cache_key", res.CacheKey)
		return res, nil
	}

	t = time.Now()
	raw, err := ExtractBatch(loaded.Payload)
	if err != nil {
		return res, fmt.Errorf("extract %s: %w", res.SourceName, err)
	}
	mark("extract", t)

	t = time.Now()
	batch, err := s.normalizer.Normalize(ctx, raw)
	if err != nil {
		return res, fmt.Errorf("normalize %s: %w", res.SourceName, err)
	}
	res.Batch = batch
	mark("normalize", t)

	t = time.Now()
	if err := s.db.ReplaceBatch(ctx, batch); err != nil {
		return res, fmt.Errorf("store: %w", err)
	}
	views, err := report.Build(ctx, s.db, batch.Columns)
	if err != nil {
		return res, err
	}
	res.Views = views
	mark("report", t)

	if outputPath != "" {
		t = time.Now()
		if err := ExportToXLSX(batch, views, outputPath); err != nil {
			return res, fmt.Errorf("export: %w", err)
		}
		res.OutputPath = outputPath
		mark("export", t)
	}

	mark("total", start)
	run := internal.RunRow{
		TraceID:     res.TraceID,
		SourceName:  res.SourceName,
		CacheKey:    res.CacheKey,
		Records:     len(batch.Records),
		Issues:      len(batch.Issues),
		MissingCols: len(batch.MissingFields),
	}
	if _, err := s.db.InsertRun(ctx, run, timings); err != nil {
		return res, err
	}
	if err := loader.Commit(ctx, res.CacheKey); err != nil {
		return res, err
	}

	logger.Info("batch processed",
		"records", run.Records,
		"issues", run.Issues,
		"missing_fields", run.MissingCols,
		"views", len(views),
		"output", res.OutputPath,
		"total_ms", timings["totalMs"])
	return res, nil
}
