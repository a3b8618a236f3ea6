package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"hopedata/internal"
	"hopedata/internal/util"
)

// ErrMalformedBatch means the batch cannot be indexed by field name. No
// record is normalized when it is returned.
var ErrMalformedBatch = errors.New("malformed batch")

type Normalizer struct {
	policy  Policy
	workers int
	logger  *slog.Logger
}

type Option func(*Normalizer)

// WithWorkers normalizes records in n parallel chunks. Output order is
// unaffected.
func WithWorkers(n int) Option {
	return func(nz *Normalizer) {
		if n > 0 {
			nz.workers = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(nz *Normalizer) {
		if l != nil {
			nz.logger = l
		}
	}
}

func NewNormalizer(policy Policy, opts ...Option) *Normalizer {
	n := &Normalizer{policy: policy, workers: 1, logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) Policy() Policy {
	return n.policy
}

// Normalize maps every raw row to a canonical record, row for row. Field
// level failures become sentinels plus an Issue; only a malformed batch or a
// cancelled context returns an error.
func (n *Normalizer) Normalize(ctx context.Context, batch internal.RawBatch) (internal.CanonicalBatch, error) {
	schema, err := resolveSchema(batch)
	if err != nil {
		return internal.CanonicalBatch{}, err
	}

	present := make(map[internal.Field]bool, len(schema))
	for _, f := range schema {
		present[f] = true
	}

	out := internal.CanonicalBatch{Columns: outputColumns(schema, present)}
	for _, rule := range n.policy.rules {
		if !present[rule.Field] {
			out.MissingFields = append(out.MissingFields, rule.Field)
		}
	}

	records := make([]internal.CanonicalRecord, len(batch.Rows))
	issues := make([][]internal.Issue, len(batch.Rows))
	work := func(start, end int) {
		for i := start; i < end; i++ {
			records[i], issues[i] = n.normalizeRecord(i+1, schema, batch.Rows[i], present)
		}
	}

	if err := n.run(ctx, len(batch.Rows), work); err != nil {
		return internal.CanonicalBatch{}, err
	}

	out.Records = records
	for _, list := range issues {
		out.Issues = append(out.Issues, list...)
	}

	n.logger.Debug("batch normalized",
		"records", len(out.Records),
		"issues", len(out.Issues),
		"missing_fields", len(out.MissingFields))

	return out, nil
}

func (n *Normalizer) run(ctx context.Context, total int, work func(start, end int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.workers <= 1 || total < 2 {
		work(0, total)
		return nil
	}

	chunk := (total + n.workers - 1) / n.workers
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.workers)
	for start := 0; start < total; start += chunk {
		start, end := start, min(start+chunk, total)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			work(start, end)
			return nil
		})
	}
	return g.Wait()
}

// resolveSchema maps headers to fields. Blank headers, and cells beyond the
// last header that hold data, are named by position (column_N) and pass
// through untouched.
func resolveSchema(batch internal.RawBatch) ([]internal.Field, error) {
	if len(batch.Columns) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrMalformedBatch)
	}

	width := len(batch.Columns)
	for _, row := range batch.Rows {
		for c := len(row) - 1; c >= width; c-- {
			if strings.TrimSpace(row[c]) != "" {
				width = c + 1
				break
			}
		}
	}

	schema := make([]internal.Field, width)
	seen := make(map[internal.Field]int, width)
	for i := range schema {
		f := internal.Field("")
		if i < len(batch.Columns) {
			f = ResolveColumn(batch.Columns[i])
		}
		if f == "" {
			f = positionalField(i)
		}
		if prev, ok := seen[f]; ok {
			return nil, fmt.Errorf("%w: columns %d and %d both resolve to %q", ErrMalformedBatch, prev+1, i+1, f)
		}
		seen[f] = i
		schema[i] = f
	}

	return schema, nil
}

func positionalField(i int) internal.Field {
	return internal.Field(fmt.Sprintf("column_%d", i+1))
}

func outputColumns(schema []internal.Field, present map[internal.Field]bool) []internal.Field {
	cols := append([]internal.Field(nil), schema...)
	appendDerived := func(f internal.Field, needs ...internal.Field) {
		if present[f] {
			return
		}
		for _, need := range needs {
			if !present[need] {
				return
			}
		}
		cols = append(cols, f)
	}
	appendDerived(internal.FieldAnnualIncome, internal.FieldMonthlyIncome)
	appendDerived(internal.FieldIncomeBracket, internal.FieldMonthlyIncome)
	appendDerived(internal.FieldProcessingDays, internal.FieldRequestDate, internal.FieldPaymentDate)
	appendDerived(internal.FieldReportYear, internal.FieldRequestDate)
	return cols
}

func (n *Normalizer) normalizeRecord(rowNo int, schema []internal.Field, row []string, present map[internal.Field]bool) (internal.CanonicalRecord, []internal.Issue) {
	rec := internal.CanonicalRecord{
		RowNo:   rowNo,
		Values:  map[internal.Field]string{},
		Dates:   map[internal.Field]internal.Cell[time.Time]{},
		Numbers: map[internal.Field]internal.Cell[float64]{},
	}
	var issues []internal.Issue
	flag := func(field internal.Field, kind internal.IssueKind, raw string) {
		issues = append(issues, internal.Issue{RowNo: rowNo, Field: field, Kind: kind, Raw: raw})
	}

	for i, field := range schema {
		if IsDerived(field) {
			continue
		}
		raw := ""
		if i < len(row) {
			raw = row[i]
		}

		rule, ok := n.policy.Rule(field)
		if !ok {
			rec.Values[field] = raw
			continue
		}

		switch rule.Kind {
		case RuleVocabulary:
			if util.CleanText(raw) == rule.Default {
				rec.Values[field] = rule.Default
				continue
			}
			res := Match(raw, rule.Vocab, rule.Threshold, rule.Default, WithCaseFold(rule.CaseFold))
			if res.Reason == ReasonBelowThreshold {
				flag(field, internal.IssueBelowThreshold, raw)
			}
			rec.Values[field] = res.Value

		case RuleStateAbbr:
			if abbr, ok := rule.Abbreviation(raw); ok {
				rec.Values[field] = abbr
				continue
			}
			res := Match(raw, rule.Vocab, rule.Threshold, "", WithCaseFold(rule.CaseFold))
			switch {
			case res.Matched:
				rec.Values[field] = rule.AbbreviationOf(res.Value)
			default:
				if res.Reason == ReasonBelowThreshold {
					flag(field, internal.IssueBelowThreshold, raw)
				}
				rec.Values[field] = raw
			}

		case RuleGazetteer:
			res := Match(raw, rule.Vocab, rule.Threshold, "", WithCaseFold(rule.CaseFold))
			switch {
			case res.Matched:
				rec.Values[field] = res.Value
			default:
				if res.Reason == ReasonBelowThreshold {
					flag(field, internal.IssueBelowThreshold, raw)
				}
				rec.Values[field] = raw
			}

		case RuleDate:
			if util.IsMissing(raw) || isSentinel(raw, internal.SentinelUnknown) {
				rec.Dates[field] = internal.Unknown[time.Time]()
				continue
			}
			t, ok := n.policy.ParseDateFor(rule, raw)
			if !ok {
				flag(field, internal.IssueFieldUnparseable, raw)
				rec.Dates[field] = internal.Unparseable[time.Time]()
				continue
			}
			rec.Dates[field] = internal.Valid(t)

		case RuleNumber:
			if util.IsMissing(raw) || isSentinel(raw, internal.SentinelUnknown) {
				rec.Numbers[field] = internal.Unknown[float64]()
				continue
			}
			v, ok := util.ParseNumber(raw)
			if !ok {
				flag(field, internal.IssueFieldUnparseable, raw)
				rec.Numbers[field] = internal.Unparseable[float64]()
				continue
			}
			rec.Numbers[field] = internal.Valid(v)
		}
	}

	n.derive(&rec, present)
	return rec, issues
}

// civilDays counts whole days between two UTC midnights without going
// through time.Duration, which saturates past about 292 years.
func civilDays(from, to time.Time) int {
	return int((to.Unix() - from.Unix()) / 86400)
}

// isSentinel reports whether raw is a sentinel written by an earlier run.
func isSentinel(raw, sentinel string) bool {
	return strings.EqualFold(util.CleanText(raw), sentinel)
}

func (n *Normalizer) derive(rec *internal.CanonicalRecord, present map[internal.Field]bool) {
	if present[internal.FieldMonthlyIncome] {
		annual := internal.Unknown[float64]()
		bracket := internal.Unknown[string]()
		if monthly := rec.Numbers[internal.FieldMonthlyIncome]; monthly.OK() {
			annual = internal.Valid(monthly.Value * 12)
			bracket = internal.Valid(n.policy.BracketFor(annual.Value))
		}
		rec.AnnualIncome = &annual
		rec.IncomeBracket = &bracket
	}

	if present[internal.FieldRequestDate] {
		requested := rec.Dates[internal.FieldRequestDate]

		year := internal.Unknown[int]()
		if requested.OK() {
			year = internal.Valid(requested.Value.Year())
		}
		rec.ReportYear = &year

		if present[internal.FieldPaymentDate] {
			days := internal.Unknown[int]()
			if paid := rec.Dates[internal.FieldPaymentDate]; requested.OK() && paid.OK() {
				days = internal.Valid(civilDays(requested.Value, paid.Value))
			}
			rec.ProcessingDays = &days
		}
	}
}
