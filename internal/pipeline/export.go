package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"hopedata/internal"
	"hopedata/internal/report"
)

const (
	SheetRecords = "records"
	SheetIssues  = "issues"
	SheetSummary = "summary"
)

// ExportToXLSX writes the canonical batch, its field issues and the report
// views to one workbook. The records sheet carries only canonical columns in
// input row order, so it can be fed back through the normalizer.
func ExportToXLSX(batch internal.CanonicalBatch, views []report.View, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), SheetRecords); err != nil {
		return err
	}

	headers := make([]string, len(batch.Columns))
	for i, c := range batch.Columns {
		headers[i] = string(c)
	}
	writeHeader(f, SheetRecords, headers)
	for i, rec := range batch.Records {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(SheetRecords, cell, value)
		}
		for j, field := range batch.Columns {
			set(j+1, exportValue(rec, field))
		}
	}

	if _, err := f.NewSheet(SheetIssues); err != nil {
		return err
	}
	writeHeader(f, SheetIssues, []string{"row_no", "field", "kind", "raw"})
	for i, is := range batch.Issues {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(SheetIssues, cell, value)
		}
		set(1, is.RowNo)
		set(2, string(is.Field))
		set(3, string(is.Kind))
		set(4, is.Raw)
	}

	if _, err := f.NewSheet(SheetSummary); err != nil {
		return err
	}
	missing := make([]string, len(batch.MissingFields))
	for i, m := range batch.MissingFields {
		missing[i] = string(m)
	}
	summary := [][]any{
		{"records", len(batch.Records)},
		{"issues", len(batch.Issues)},
		{"missing_fields", strings.Join(missing, ", ")},
	}
	for i, row := range summary {
		for j, v := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			_ = f.SetCellValue(SheetSummary, cell, v)
		}
	}

	for _, v := range views {
		if _, err := f.NewSheet(v.Name); err != nil {
			return err
		}
		writeHeader(f, v.Name, v.Columns)
		for i, row := range v.Rows {
			for j, value := range row {
				cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
				_ = f.SetCellValue(v.Name, cell, value)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

// exportValue keeps valid numbers numeric so the workbook can sum them;
// everything else goes out as its canonical text.
func exportValue(rec internal.CanonicalRecord, field internal.Field) any {
	if c, ok := rec.Numbers[field]; ok && c.OK() {
		return c.Value
	}
	switch field {
	case internal.FieldAnnualIncome:
		if rec.AnnualIncome != nil && rec.AnnualIncome.OK() {
			return rec.AnnualIncome.Value
		}
	case internal.FieldProcessingDays:
		if rec.ProcessingDays != nil && rec.ProcessingDays.OK() {
			return rec.ProcessingDays.Value
		}
	case internal.FieldReportYear:
		if rec.ReportYear != nil && rec.ReportYear.OK() {
			return rec.ReportYear.Value
		}
	}
	v, _ := rec.Text(field)
	return v
}
