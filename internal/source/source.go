package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatHTML = "html"
	FormatEML  = "eml"
	// FormatRows carries already-tabular values (Google Sheets).
	FormatRows = "rows"
)

var ErrNotFound = errors.New("source not found")

// Payload is one fetched export. Exactly one of Data or Rows is set.
type Payload struct {
	Name    string
	Format  string
	Data    []byte
	Rows    [][]string
	ModTime time.Time
}

// Source fetches the current export. Implementations do no caching.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Payload, error)
}

// CacheKey identifies a payload by source identity, modification time and
// content hash. Two fetches with the same key hold the same records.
func CacheKey(p Payload) string {
	h := sha256.New()
	if p.Rows != nil {
		for _, row := range p.Rows {
			h.Write([]byte(strings.Join(row, "\x1f")))
			h.Write([]byte{'\x1e'})
		}
	} else {
		h.Write(p.Data)
	}
	mod := ""
	if !p.ModTime.IsZero() {
		mod = p.ModTime.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%s|%s|%s", p.Name, mod, hex.EncodeToString(h.Sum(nil)))
}
