package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	"github.com/xuri/excelize/v2"

	"hopedata/internal"
	"hopedata/internal/source"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported input format")
	ErrNoRecordsSheet    = errors.New("no sheet or table looks like the records export")
)

// FormatFromName guesses the payload format from a file name or URL path.
func FormatFromName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if i := strings.IndexAny(ext, "?#"); i >= 0 {
		ext = ext[:i]
	}
	switch ext {
	case ".csv", ".txt":
		return source.FormatCSV
	case ".xlsx", ".xlsm":
		return source.FormatXLSX
	case ".html", ".htm":
		return source.FormatHTML
	case ".eml":
		return source.FormatEML
	default:
		return ""
	}
}

// ExtractBatch decodes a payload into a raw batch. The header row is
// located with DetectHeaderRow; rows above it are dropped.
func ExtractBatch(p source.Payload) (internal.RawBatch, error) {
	format := p.Format
	if format == "" {
		format = FormatFromName(p.Name)
	}
	switch format {
	case source.FormatCSV:
		return parseCSV(p.Data)
	case source.FormatXLSX:
		return parseXLSX(p.Data)
	case source.FormatHTML:
		return parseHTMLTable(string(p.Data))
	case source.FormatEML:
		return parseEML(p.Data)
	case source.FormatRows:
		return rowsToBatch(p.Rows)
	default:
		return internal.RawBatch{}, fmt.Errorf("%w: %q (%s)", ErrUnsupportedFormat, format, p.Name)
	}
}

func parseCSV(content []byte) (internal.RawBatch, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows := [][]string{}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return internal.RawBatch{}, fmt.Errorf("csv: %w", err)
		}
		rows = append(rows, row)
	}
	return rowsToBatch(rows)
}

func parseXLSX(content []byte) (internal.RawBatch, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return internal.RawBatch{}, err
	}
	defer f.Close()

	var bestRows [][]string
	best := DetectResult{HeaderRow: -1}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if res := DetectHeaderRow(rows); res.Score > best.Score {
			best, bestRows = res, rows
		}
	}
	if !best.IsRecords {
		return internal.RawBatch{}, ErrNoRecordsSheet
	}
	return buildBatch(bestRows, best.HeaderRow), nil
}

func parseHTMLTable(html string) (internal.RawBatch, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return internal.RawBatch{}, err
	}

	var bestRows [][]string
	best := DetectResult{HeaderRow: -1}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := [][]string{}
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := []string{}
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			rows = append(rows, cells)
		})
		if res := DetectHeaderRow(rows); res.Score > best.Score {
			best, bestRows = res, rows
		}
	})
	if !best.IsRecords {
		return internal.RawBatch{}, ErrNoRecordsSheet
	}
	return buildBatch(bestRows, best.HeaderRow), nil
}

// parseEML takes the first spreadsheet-like attachment, falling back to an
// HTML table in the message body.
func parseEML(raw []byte) (internal.RawBatch, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.RawBatch{}, err
	}

	for _, att := range env.Attachments {
		format := FormatFromName(att.FileName)
		if format == "" || format == source.FormatEML {
			continue
		}
		batch, err := ExtractBatch(source.Payload{Name: att.FileName, Format: format, Data: att.Content})
		if errors.Is(err, ErrNoRecordsSheet) {
			continue
		}
		return batch, err
	}

	if env.HTML != "" {
		return parseHTMLTable(env.HTML)
	}
	return internal.RawBatch{}, ErrNoRecordsSheet
}

func rowsToBatch(rows [][]string) (internal.RawBatch, error) {
	res := DetectHeaderRow(rows)
	if res.HeaderRow < 0 {
		// Nothing recognized: trust the first non-empty row as header and
		// let the normalizer pass unknown columns through.
		for i, row := range rows {
			if !isBlankRow(row) {
				return buildBatch(rows, i), nil
			}
		}
		return internal.RawBatch{}, ErrNoRecordsSheet
	}
	return buildBatch(rows, res.HeaderRow), nil
}

// buildBatch pads short rows (spreadsheet readers drop trailing blanks) and
// skips fully blank rows.
func buildBatch(rows [][]string, headerRow int) internal.RawBatch {
	header := trimTrailingBlank(rows[headerRow])
	batch := internal.RawBatch{Columns: make([]string, len(header))}
	for i, h := range header {
		batch.Columns[i] = strings.TrimSpace(h)
	}
	for _, row := range rows[headerRow+1:] {
		if isBlankRow(row) {
			continue
		}
		cells := make([]string, max(len(header), len(row)))
		copy(cells, row)
		batch.Rows = append(batch.Rows, cells)
	}
	return batch
}

func trimTrailingBlank(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
