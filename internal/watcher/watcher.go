package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"hopedata/internal/config"
	"hopedata/internal/pipeline"
	"hopedata/internal/source"
)

type Processor interface {
	Process(ctx context.Context, loader *source.Loader, outputPath string, force bool) (pipeline.ProcessResult, error)
}

type Service struct {
	proc     Processor
	loader   *source.Loader
	cfg      config.Config
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewService(proc Processor, loader *source.Loader, cfg config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	interval := time.Duration(cfg.WatchIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{proc: proc, loader: loader, cfg: cfg, logger: logger, interval: interval, now: time.Now}
}

// Run polls until ctx is cancelled. A failed cycle is logged and the next
// one runs on schedule.
func (s *Service) Run(ctx context.Context) error {
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("watch cycle failed", "source", s.loader.Source().Name(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.interval):
		}
	}
}

// RunCycle processes the source if its cache key moved and reports whether
// it did.
func (s *Service) RunCycle(ctx context.Context) (bool, error) {
	outputPath := ""
	if s.cfg.WatchAutoExport {
		outputPath = s.outputPath()
	}

	res, err := s.proc.Process(ctx, s.loader, outputPath, false)
	if err != nil {
		return false, err
	}
	if !res.Changed {
		return false, nil
	}

	s.logger.Info("watch cycle done",
		"source", res.SourceName,
		"trace_id", res.TraceID,
		"records", len(res.Batch.Records),
		"issues", len(res.Batch.Issues),
		"output", res.OutputPath)
	return true, nil
}

func (s *Service) outputPath() string {
	base := strings.TrimSuffix(filepath.Base(s.loader.Source().Name()), filepath.Ext(s.loader.Source().Name()))
	filename := fmt.Sprintf("%s_%s.xlsx", s.now().UTC().Format("20060102T150405Z"), sanitizeName(base))
	return filepath.Join(s.cfg.OutputDir, "watch", filename)
}

func sanitizeName(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	if out == "" {
		out = "export"
	}
	return out
}
