package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKeys map[string]string

func (m memKeys) GetMetadata(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memKeys) SetMetadata(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

type fakeValues struct {
	rows [][]interface{}
	rng  string
}

func (f *fakeValues) Get(_ context.Context, _ string, readRange string) ([][]interface{}, error) {
	f.rng = readRange
	return f.rows, nil
}

func TestCacheKey(t *testing.T) {
	mod := time.Date(2023, 1, 10, 8, 0, 0, 0, time.UTC)
	base := Payload{Name: "/data/export.csv", Data: []byte("Gender\nfemal\n"), ModTime: mod}

	cases := []struct {
		name  string
		other Payload
		same  bool
	}{
		{"identical", base, true},
		{"content changed", Payload{Name: base.Name, Data: []byte("Gender\nmale\n"), ModTime: mod}, false},
		{"touched", Payload{Name: base.Name, Data: base.Data, ModTime: mod.Add(time.Second)}, false},
		{"renamed", Payload{Name: "/data/other.csv", Data: base.Data, ModTime: mod}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.same, CacheKey(base) == CacheKey(tc.other))
		})
	}
}

func TestCacheKeyRows(t *testing.T) {
	a := Payload{Name: "sheets:abc", Rows: [][]string{{"a", "b"}, {"c"}}}
	b := Payload{Name: "sheets:abc", Rows: [][]string{{"a"}, {"b", "c"}}}
	assert.NotEqual(t, CacheKey(a), CacheKey(b))
}

func TestFileSourceFetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.csv")
	require.NoError(t, os.WriteFile(path, []byte("City\nOmaha\n"), 0o644))

	src := NewFileSource(path, "")
	p, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "City\nOmaha\n", string(p.Data))
	assert.False(t, p.ModTime.IsZero())
	assert.True(t, filepath.IsAbs(p.Name))

	_, err = NewFileSource(filepath.Join(dir, "nope.csv"), "").Fetch(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSheetsSourceFetch(t *testing.T) {
	fv := &fakeValues{rows: [][]interface{}{
		{"Gender", "Amount"},
		{"femal", 250},
		{nil, "$1,000.00"},
	}}
	src := newSheetsSource("abc", "", fv)

	p, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sheets:abc", p.Name)
	assert.Equal(t, FormatRows, p.Format)
	assert.Equal(t, "A:AZ", fv.rng)
	assert.Equal(t, [][]string{{"Gender", "Amount"}, {"femal", "250"}, {"", "$1,000.00"}}, p.Rows)
}

func TestOpenDispatch(t *testing.T) {
	cfg := testConfig()

	src, err := Open(context.Background(), cfg, "https://example.test/a.csv", "")
	require.NoError(t, err)
	assert.IsType(t, &HTTPSource{}, src)

	src, err = Open(context.Background(), cfg, "./export.xlsx", "")
	require.NoError(t, err)
	assert.IsType(t, &FileSource{}, src)

	_, err = Open(context.Background(), cfg, "sheets:abc", "")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "GOOGLE_CLIENT_ID"))

	_, err = Open(context.Background(), cfg, "  ", "")
	assert.Error(t, err)
}

func TestLoaderDetectsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.csv")
	require.NoError(t, os.WriteFile(path, []byte("City\nOmaha\n"), 0o644))

	keys := memKeys{}
	snaps := filepath.Join(dir, "raw")
	l := NewLoader(NewFileSource(path, ""), keys, snaps)
	ctx := context.Background()

	first, err := l.Load(ctx)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.FileExists(t, first.Snapshot)
	require.NoError(t, l.Commit(ctx, first.CacheKey))

	again, err := l.Load(ctx)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Empty(t, again.Snapshot)

	require.NoError(t, os.WriteFile(path, []byte("City\nLincoln\n"), 0o644))
	changed, err := l.Load(ctx)
	require.NoError(t, err)
	assert.True(t, changed.Changed)
	assert.NotEqual(t, first.CacheKey, changed.CacheKey)
}
