package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hopedata/internal/config"
)

type HTTPSource struct {
	url         string
	format      string
	maxAttempts int
	httpClient  *http.Client
	limiter     *RateLimiter
}

func NewHTTPSource(cfg config.Config, rawURL, format string) (*HTTPSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	attempts := cfg.SourceMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &HTTPSource{
		url:         u.String(),
		format:      strings.ToLower(strings.TrimSpace(format)),
		maxAttempts: attempts,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.SourceTimeoutMs) * time.Millisecond},
		limiter:     NewRateLimiter(cfg.SourceRateLimitRPS),
	}, nil
}

func (s *HTTPSource) Name() string {
	return s.url
}

func (s *HTTPSource) Fetch(ctx context.Context) (Payload, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return Payload{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return Payload{}, err
		}
		req.Header.Set("Accept", "text/csv, application/vnd.openxmlformats-officedocument.spreadsheetml.sheet, text/html, */*")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return Payload{}, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return Payload{}, fmt.Errorf("%w: %s", ErrNotFound, s.url)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < s.maxAttempts {
				lastErr = fmt.Errorf("source status %d", resp.StatusCode)
				if err := sleepCtx(ctx, backoff(attempt)); err != nil {
					return Payload{}, err
				}
				continue
			}
			return Payload{}, fmt.Errorf("source error: status=%d body=%s", resp.StatusCode, truncate(string(body), 200))
		}

		p := Payload{Name: s.url, Format: s.format, Data: body}
		if p.Format == "" {
			p.Format = formatFromContentType(resp.Header.Get("Content-Type"))
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				p.ModTime = t
			}
		}
		return p, nil
	}

	if lastErr == nil {
		lastErr = errors.New("source request failed")
	}
	return Payload{}, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func formatFromContentType(ct string) string {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "text/csv"):
		return FormatCSV
	case strings.Contains(ct, "spreadsheetml"):
		return FormatXLSX
	case strings.Contains(ct, "text/html"):
		return FormatHTML
	case strings.Contains(ct, "message/rfc822"):
		return FormatEML
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
