package source

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"hopedata/internal/config"
)

const SheetsPrefix = "sheets:"

// valuesGetter is the slice of the Sheets API the source uses.
type valuesGetter interface {
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error)
}

type sheetsValues struct {
	svc *sheets.Service
}

func (v sheetsValues) Get(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// SheetsSource reads the live tracking spreadsheet with the formatted cell
// values, so dates and amounts arrive as the spreadsheet displays them.
type SheetsSource struct {
	spreadsheetID string
	readRange     string
	values        valuesGetter
}

func NewSheetsSource(ctx context.Context, cfg config.Config, spreadsheetID string) (*SheetsSource, error) {
	if err := cfg.Require("GOOGLE_CLIENT_ID", cfg.GoogleClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GOOGLE_REFRESH_TOKEN", cfg.GoogleRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{sheets.SpreadsheetsReadonlyScope},
	}
	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GoogleRefreshToken})
	svc, err := sheets.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newSheetsSource(spreadsheetID, cfg.SheetsRange, sheetsValues{svc: svc}), nil
}

func newSheetsSource(spreadsheetID, readRange string, values valuesGetter) *SheetsSource {
	if strings.TrimSpace(readRange) == "" {
		readRange = "A:AZ"
	}
	return &SheetsSource{spreadsheetID: spreadsheetID, readRange: readRange, values: values}
}

func (s *SheetsSource) Name() string {
	return SheetsPrefix + s.spreadsheetID
}

// Fetch leaves ModTime zero; the cache key falls back to the content hash.
func (s *SheetsSource) Fetch(ctx context.Context) (Payload, error) {
	raw, err := s.values.Get(ctx, s.spreadsheetID, s.readRange)
	if err != nil {
		return Payload{}, fmt.Errorf("sheets %s: %w", s.spreadsheetID, err)
	}
	rows := make([][]string, len(raw))
	for i, row := range raw {
		cells := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		rows[i] = cells
	}
	return Payload{Name: s.Name(), Format: FormatRows, Rows: rows}, nil
}
