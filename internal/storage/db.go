package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"hopedata/internal"
)

// DB is the process-lifetime aggregation store. It lives in memory only;
// nothing survives Close.
type DB struct {
	conn *sql.DB
}

var (
	TextFields = []internal.Field{
		internal.FieldPatientID,
		internal.FieldRequestStatus,
		internal.FieldApplicationSigned,
		internal.FieldMaritalStatus,
		internal.FieldGender,
		internal.FieldRace,
		internal.FieldHispanicLatino,
		internal.FieldSexualOrientation,
		internal.FieldInsuranceType,
		internal.FieldAssistanceType,
		internal.FieldCity,
		internal.FieldState,
		internal.FieldIncomeBracket,
	}
	DateFields = []internal.Field{
		internal.FieldRequestDate,
		internal.FieldPaymentDate,
		internal.FieldDateOfBirth,
	}
	NumberFields = []internal.Field{
		internal.FieldMonthlyIncome,
		internal.FieldAmount,
		internal.FieldRemainingBalance,
		internal.FieldAnnualIncome,
	}
	IntFields = []internal.Field{
		internal.FieldProcessingDays,
		internal.FieldReportYear,
	}
)

func Open() (*DB, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every pooled connection would get its own empty in-memory database.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func recordColumns() []string {
	cols := []string{"rowNo"}
	for _, group := range [][]internal.Field{TextFields, DateFields, NumberFields, IntFields} {
		for _, f := range group {
			cols = append(cols, string(f))
		}
	}
	return append(cols, "extraJson")
}

func (d *DB) init() error {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS records (\n  rowNo INTEGER PRIMARY KEY")
	for _, f := range TextFields {
		fmt.Fprintf(&b, ",\n  %s TEXT", f)
	}
	for _, f := range DateFields {
		fmt.Fprintf(&b, ",\n  %s TEXT", f)
	}
	for _, f := range NumberFields {
		fmt.Fprintf(&b, ",\n  %s REAL", f)
	}
	for _, f := range IntFields {
		fmt.Fprintf(&b, ",\n  %s INTEGER", f)
	}
	b.WriteString(",\n  extraJson TEXT NOT NULL DEFAULT '{}'\n);\n")

	schema := b.String() + `
CREATE TABLE IF NOT EXISTS issues (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  rowNo INTEGER NOT NULL,
  field TEXT NOT NULL,
  kind TEXT NOT NULL,
  raw TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  sourceName TEXT NOT NULL,
  cacheKey TEXT NOT NULL,
  records INTEGER NOT NULL,
  issues INTEGER NOT NULL,
  missingCols INTEGER NOT NULL,
  timingsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// ReplaceBatch swaps the stored records and issues for batch. Fields absent
// from the batch are stored as NULL.
func (d *DB) ReplaceBatch(ctx context.Context, batch internal.CanonicalBatch) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records; DELETE FROM issues;`); err != nil {
		return err
	}

	cols := recordColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO records (%s) VALUES (%s)`, strings.Join(cols, ", "), placeholders))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range batch.Records {
		if _, err := stmt.ExecContext(ctx, recordArgs(r)...); err != nil {
			return fmt.Errorf("insert row %d: %w", r.RowNo, err)
		}
	}

	issueStmt, err := tx.PrepareContext(ctx, `INSERT INTO issues (rowNo, field, kind, raw) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer issueStmt.Close()
	for _, is := range batch.Issues {
		if _, err := issueStmt.ExecContext(ctx, is.RowNo, string(is.Field), string(is.Kind), is.Raw); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func recordArgs(r internal.CanonicalRecord) []any {
	args := []any{r.RowNo}
	for _, f := range TextFields {
		args = append(args, textOrNull(r, f))
	}
	for _, f := range DateFields {
		args = append(args, textOrNull(r, f))
	}
	for _, f := range NumberFields {
		args = append(args, numberOrNull(r, f))
	}
	args = append(args, intOrNull(r.ProcessingDays), intOrNull(r.ReportYear))

	extra := map[string]string{}
	for k, v := range r.Values {
		if !isStored(k) {
			extra[string(k)] = v
		}
	}
	extraJSON, _ := json.Marshal(extra)
	return append(args, string(extraJSON))
}

func textOrNull(r internal.CanonicalRecord, f internal.Field) any {
	if v, ok := r.Text(f); ok {
		return v
	}
	return nil
}

func numberOrNull(r internal.CanonicalRecord, f internal.Field) any {
	if f == internal.FieldAnnualIncome {
		if r.AnnualIncome != nil && r.AnnualIncome.OK() {
			return r.AnnualIncome.Value
		}
		return nil
	}
	if c, ok := r.Numbers[f]; ok && c.OK() {
		return c.Value
	}
	return nil
}

func intOrNull(c *internal.Cell[int]) any {
	if c != nil && c.OK() {
		return c.Value
	}
	return nil
}

func isStored(f internal.Field) bool {
	for _, group := range [][]internal.Field{TextFields, DateFields, NumberFields, IntFields} {
		for _, g := range group {
			if g == f {
				return true
			}
		}
	}
	return false
}

func (d *DB) CountRecords(ctx context.Context) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

// Aggregate runs a read-only query and returns its rows with values
// normalized to int64, float64, string or nil.
func (d *DB) Aggregate(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	return cols, out, rows.Err()
}

func (d *DB) InsertRun(ctx context.Context, run internal.RunRow, timings map[string]float64) (int64, error) {
	timingsJSON, _ := json.Marshal(timings)
	res, err := d.conn.ExecContext(ctx, `
INSERT INTO runs (traceId, sourceName, cacheKey, records, issues, missingCols, timingsJson)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.TraceID, run.SourceName, run.CacheKey, run.Records, run.Issues, run.MissingCols, string(timingsJSON))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListRuns returns the most recent runs first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]internal.RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, traceId, sourceName, cacheKey, records, issues, missingCols, createdAt
FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		var r internal.RunRow
		if err := rows.Scan(&r.ID, &r.TraceID, &r.SourceName, &r.CacheKey, &r.Records, &r.Issues, &r.MissingCols, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
