package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type FileSource struct {
	path   string
	format string
}

// NewFileSource reads a local export. format may be empty to infer it from
// the extension downstream.
func NewFileSource(path, format string) *FileSource {
	return &FileSource{path: path, format: strings.ToLower(strings.TrimSpace(format))}
}

func (s *FileSource) Name() string {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		return s.path
	}
	return abs
}

func (s *FileSource) Fetch(ctx context.Context) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return Payload{}, err
	}
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Payload{}, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	if err != nil {
		return Payload{}, err
	}
	blob, err := os.ReadFile(s.path)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Name: s.Name(), Format: s.format, Data: blob, ModTime: info.ModTime()}, nil
}
