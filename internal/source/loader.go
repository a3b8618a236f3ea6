package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

const lastKeyName = "source.last_cache_key"

// KeyStore remembers the cache key of the last processed payload.
type KeyStore interface {
	GetMetadata(ctx context.Context, key string) (string, bool, error)
	SetMetadata(ctx context.Context, key, value string) error
}

type Loader struct {
	src     Source
	keys    KeyStore
	snapDir string
}

type LoadResult struct {
	Payload  Payload
	CacheKey string
	Changed  bool
	Snapshot string
}

// NewLoader wraps src with change detection. snapDir may be empty to skip
// keeping raw snapshots of fetched exports.
func NewLoader(src Source, keys KeyStore, snapDir string) *Loader {
	return &Loader{src: src, keys: keys, snapDir: snapDir}
}

func (l *Loader) Source() Source {
	return l.src
}

// Load fetches the export and reports whether its cache key differs from the
// last committed one. The new key is not stored until Commit.
func (l *Loader) Load(ctx context.Context) (LoadResult, error) {
	p, err := l.src.Fetch(ctx)
	if err != nil {
		return LoadResult{}, err
	}
	res := LoadResult{Payload: p, CacheKey: CacheKey(p), Changed: true}
	if l.keys != nil {
		last, ok, err := l.keys.GetMetadata(ctx, lastKeyName)
		if err != nil {
			return LoadResult{}, err
		}
		res.Changed = !ok || last != res.CacheKey
	}
	if res.Changed && l.snapDir != "" && p.Data != nil {
		path, err := l.snapshot(p)
		if err != nil {
			return LoadResult{}, err
		}
		res.Snapshot = path
	}
	return res, nil
}

func (l *Loader) Commit(ctx context.Context, cacheKey string) error {
	if l.keys == nil {
		return nil
	}
	return l.keys.SetMetadata(ctx, lastKeyName, cacheKey)
}

func (l *Loader) snapshot(p Payload) (string, error) {
	sum := sha256.Sum256(p.Data)
	hash := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(l.snapDir, 0o755); err != nil {
		return "", err
	}
	ext := filepath.Ext(p.Name)
	if ext == "" && p.Format != "" {
		ext = "." + p.Format
	}
	path := filepath.Join(l.snapDir, hash+ext)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, p.Data, 0o644); err != nil {
			return "", err
		}
	}
	return path, nil
}
