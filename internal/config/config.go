package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Source    string
	OutputDir string

	LogLevel  string
	LogFormat string

	MatchThreshold      float64
	CityMatchThreshold  float64
	StateMatchThreshold float64
	DateLayouts         []string
	IncomeBracketBounds []float64
	NormalizeWorkers    int

	SourceTimeoutMs    int
	SourceRateLimitRPS int
	SourceMaxAttempts  int

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	SheetsRange        string

	WatchIntervalSec int
	WatchAutoExport  bool
}

var (
	DefaultDateLayouts         = []string{"1/2/2006", "1/2/06", "2006-01-02", "2006-01-02 15:04:05"}
	DefaultIncomeBracketBounds = []float64{15650, 19562.5, 23475, 28925.5, 70000}
)

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	bounds, err := getEnvFloatList("INCOME_BRACKET_BOUNDS", DefaultIncomeBracketBounds)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Source:    getEnv("SOURCE", ""),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		MatchThreshold:      getEnvFloat("MATCH_THRESHOLD", 70),
		CityMatchThreshold:  getEnvFloat("CITY_MATCH_THRESHOLD", 80),
		StateMatchThreshold: getEnvFloat("STATE_MATCH_THRESHOLD", 70),
		DateLayouts:         getEnvList("DATE_LAYOUTS", DefaultDateLayouts),
		IncomeBracketBounds: bounds,
		NormalizeWorkers:    getEnvInt("NORMALIZE_WORKERS", 1),

		SourceTimeoutMs:    getEnvInt("SOURCE_TIMEOUT_MS", 30000),
		SourceRateLimitRPS: getEnvInt("SOURCE_RATE_LIMIT_RPS", 2),
		SourceMaxAttempts:  getEnvInt("SOURCE_MAX_ATTEMPTS", 5),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),
		SheetsRange:        getEnv("SHEETS_RANGE", "A:AZ"),

		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 60),
		WatchAutoExport:  getEnvBool("WATCH_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

// getEnvList splits on "|" since date layouts contain commas and slashes.
func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return append([]string(nil), fallback...)
	}
	out := []string{}
	for _, part := range strings.Split(value, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

// getEnvFloatList fails on unparseable or non-increasing values.
func getEnvFloatList(key string, fallback []float64) ([]float64, error) {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return append([]float64(nil), fallback...), nil
	}
	parts := strings.Split(value, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if len(out) > 0 && f <= out[len(out)-1] {
			return nil, fmt.Errorf("%s: bounds must be strictly increasing", key)
		}
		out = append(out, f)
	}
	return out, nil
}
