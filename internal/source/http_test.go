package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hopedata/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testConfig() config.Config {
	return config.Config{SourceTimeoutMs: 1000, SourceRateLimitRPS: 1000, SourceMaxAttempts: 3}
}

func response(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: header}
}

func TestHTTPSourceFetchWithRetry(t *testing.T) {
	attempt := 0

	src, err := NewHTTPSource(testConfig(), "https://example.test/export/records.csv", "")
	require.NoError(t, err)
	src.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			assert.Equal(t, "/export/records.csv", r.URL.Path)
			attempt++
			if attempt == 1 {
				return response(http.StatusServiceUnavailable, `busy`, nil), nil
			}
			h := make(http.Header)
			h.Set("Content-Type", "text/csv; charset=utf-8")
			h.Set("Last-Modified", "Tue, 10 Jan 2023 08:00:00 GMT")
			return response(http.StatusOK, "Gender\nfemal\n", h), nil
		}),
	}

	p, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, attempt)
	assert.Equal(t, FormatCSV, p.Format)
	assert.Equal(t, "Gender\nfemal\n", string(p.Data))
	assert.Equal(t, 2023, p.ModTime.Year())
}

func TestHTTPSourceNotFound(t *testing.T) {
	src, err := NewHTTPSource(testConfig(), "https://example.test/missing.csv", "csv")
	require.NoError(t, err)
	src.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return response(http.StatusNotFound, "", nil), nil
		}),
	}

	_, err = src.Fetch(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestHTTPSourceGivesUpOnClientError(t *testing.T) {
	calls := 0
	src, err := NewHTTPSource(testConfig(), "https://example.test/records.csv", "csv")
	require.NoError(t, err)
	src.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			return response(http.StatusForbidden, "denied", nil), nil
		}),
	}

	_, err = src.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewHTTPSourceRejectsScheme(t *testing.T) {
	_, err := NewHTTPSource(testConfig(), "ftp://example.test/records.csv", "")
	assert.Error(t, err)
}
