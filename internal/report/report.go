package report

import (
	"context"
	"fmt"
	"strings"

	"hopedata/internal"
)

// Querier is the aggregation engine the views run on.
type Querier interface {
	Aggregate(ctx context.Context, query string, args ...any) ([]string, [][]any, error)
}

type View struct {
	Name    string
	Title   string
	Columns []string
	Rows    [][]any
}

type viewDef struct {
	name    string
	title   string
	needs   []internal.Field
	columns []string
	query   string
}

var DemographicFields = []internal.Field{
	internal.FieldGender,
	internal.FieldRace,
	internal.FieldHispanicLatino,
	internal.FieldMaritalStatus,
	internal.FieldSexualOrientation,
	internal.FieldInsuranceType,
	internal.FieldIncomeBracket,
}

func definitions() []viewDef {
	defs := []viewDef{}
	for _, f := range DemographicFields {
		defs = append(defs, viewDef{
			name:    "by_" + string(f),
			title:   "Requests by " + strings.ReplaceAll(string(f), "_", " "),
			needs:   []internal.Field{f},
			columns: []string{string(f), "requests", "total_amount"},
			query: fmt.Sprintf(`
SELECT COALESCE(%[1]s, 'Unknown') AS k, COUNT(*), COALESCE(SUM(amount), 0)
FROM records GROUP BY k ORDER BY COUNT(*) DESC, k`, f),
		})
	}

	return append(defs,
		viewDef{
			name:    "by_assistance_type",
			title:   "Support by assistance type",
			needs:   []internal.Field{internal.FieldAssistanceType},
			columns: []string{"assistance_type", "requests", "total_amount", "avg_amount"},
			query: `
SELECT COALESCE(assistance_type, 'Unknown') AS k, COUNT(*), COALESCE(SUM(amount), 0), COALESCE(AVG(amount), 0)
FROM records GROUP BY k ORDER BY SUM(amount) DESC, k`,
		},
		viewDef{
			name:    "by_state",
			title:   "Support by state",
			needs:   []internal.Field{internal.FieldState},
			columns: []string{"state", "requests", "total_amount"},
			query: `
SELECT COALESCE(state, 'Unknown') AS k, COUNT(*), COALESCE(SUM(amount), 0)
FROM records GROUP BY k ORDER BY COUNT(*) DESC, k`,
		},
		viewDef{
			name:    "by_city",
			title:   "Support by city",
			needs:   []internal.Field{internal.FieldCity},
			columns: []string{"state", "city", "requests", "total_amount"},
			query: `
SELECT COALESCE(state, 'Unknown') AS s, COALESCE(city, 'Unknown') AS c, COUNT(*), COALESCE(SUM(amount), 0)
FROM records GROUP BY s, c ORDER BY COUNT(*) DESC, s, c`,
		},
		viewDef{
			name:    "by_year",
			title:   "Requests by year",
			needs:   []internal.Field{internal.FieldReportYear},
			columns: []string{"report_year", "requests", "total_amount"},
			query: `
SELECT COALESCE(CAST(report_year AS TEXT), 'Unknown') AS y, COUNT(*), COALESCE(SUM(amount), 0)
FROM records GROUP BY y ORDER BY y`,
		},
		viewDef{
			name:    "processing_time",
			title:   "Days from request to payment",
			needs:   []internal.Field{internal.FieldProcessingDays},
			columns: []string{"report_year", "paid_requests", "avg_days", "min_days", "max_days", "negative_durations"},
			query: `
SELECT COALESCE(CAST(report_year AS TEXT), 'Unknown') AS y, COUNT(processing_days),
       AVG(processing_days), MIN(processing_days), MAX(processing_days),
       SUM(CASE WHEN processing_days < 0 THEN 1 ELSE 0 END)
FROM records WHERE processing_days IS NOT NULL GROUP BY y ORDER BY y`,
		},
		viewDef{
			name:    "remaining_balance",
			title:   "Remaining balance by year",
			needs:   []internal.Field{internal.FieldRemainingBalance, internal.FieldReportYear},
			columns: []string{"report_year", "requests_with_balance", "total_remaining", "total_amount"},
			query: `
SELECT COALESCE(CAST(report_year AS TEXT), 'Unknown') AS y,
       SUM(CASE WHEN remaining_balance > 0 THEN 1 ELSE 0 END),
       COALESCE(SUM(remaining_balance), 0), COALESCE(SUM(amount), 0)
FROM records GROUP BY y ORDER BY y`,
		},
		viewDef{
			name:    "status_signed",
			title:   "Request status by signed application",
			needs:   []internal.Field{internal.FieldRequestStatus, internal.FieldApplicationSigned},
			columns: []string{"request_status", "application_signed", "requests"},
			query: `
SELECT COALESCE(request_status, 'Unknown') AS s, COALESCE(application_signed, 'Unknown') AS a, COUNT(*)
FROM records GROUP BY s, a ORDER BY s, a`,
		},
		viewDef{
			name:    "field_issues",
			title:   "Field issues",
			columns: []string{"field", "kind", "rows"},
			query:   `SELECT field, kind, COUNT(*) FROM issues GROUP BY field, kind ORDER BY field, kind`,
		},
	)
}

// Build computes every view whose source fields are present in columns. A
// view over a missing field is skipped rather than reported as all Unknown.
func Build(ctx context.Context, q Querier, columns []internal.Field) ([]View, error) {
	present := map[internal.Field]bool{}
	for _, c := range columns {
		present[c] = true
	}

	views := []View{}
	for _, def := range definitions() {
		if !hasAll(present, def.needs) {
			continue
		}
		_, rows, err := q.Aggregate(ctx, def.query)
		if err != nil {
			return nil, fmt.Errorf("view %s: %w", def.name, err)
		}
		views = append(views, View{Name: def.name, Title: def.title, Columns: def.columns, Rows: rows})
	}
	return views, nil
}

func hasAll(present map[internal.Field]bool, needs []internal.Field) bool {
	for _, f := range needs {
		if !present[f] {
			return false
		}
	}
	return true
}

// Names lists the views Build can produce, in order.
func Names() []string {
	defs := definitions()
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.name
	}
	return out
}
