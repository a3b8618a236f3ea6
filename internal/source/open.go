package source

import (
	"context"
	"errors"
	"strings"

	"hopedata/internal/config"
)

// Open picks a source for src: "sheets:<id>", an http(s) URL, or a local
// path. format overrides detection and may be empty.
func Open(ctx context.Context, cfg config.Config, src, format string) (Source, error) {
	src = strings.TrimSpace(src)
	switch {
	case src == "":
		return nil, errors.New("no source given (set SOURCE or pass a path)")
	case strings.HasPrefix(src, SheetsPrefix):
		id := strings.TrimSpace(strings.TrimPrefix(src, SheetsPrefix))
		if id == "" {
			return nil, errors.New("sheets source needs a spreadsheet id")
		}
		return NewSheetsSource(ctx, cfg, id)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return NewHTTPSource(cfg, src, format)
	default:
		return NewFileSource(src, format), nil
	}
}
