package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hopedata/internal"
)

func testBatch() internal.CanonicalBatch {
	req := time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)
	paid := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	days := internal.Valid(-5)
	year := internal.Valid(2023)
	bracket := internal.Unknown[string]()
	unknownYear := internal.Unknown[int]()

	return internal.CanonicalBatch{
		Columns: []internal.Field{internal.FieldGender, internal.FieldAmount, internal.FieldRequestDate, internal.FieldPaymentDate, "notes"},
		Records: []internal.CanonicalRecord{
			{
				RowNo:  0,
				Values: map[internal.Field]string{internal.FieldGender: "Female", "notes": "called back"},
				Dates: map[internal.Field]internal.Cell[time.Time]{
					internal.FieldRequestDate: internal.Valid(req),
					internal.FieldPaymentDate: internal.Valid(paid),
				},
				Numbers:        map[internal.Field]internal.Cell[float64]{internal.FieldAmount: internal.Valid(250.0)},
				IncomeBracket:  &bracket,
				ProcessingDays: &days,
				ReportYear:     &year,
			},
			{
				RowNo:  1,
				Values: map[internal.Field]string{internal.FieldGender: "Unknown"},
				Dates: map[internal.Field]internal.Cell[time.Time]{
					internal.FieldRequestDate: internal.Unparseable[time.Time](),
					internal.FieldPaymentDate: internal.Unknown[time.Time](),
				},
				Numbers:    map[internal.Field]internal.Cell[float64]{internal.FieldAmount: internal.Unparseable[float64]()},
				ReportYear: &unknownYear,
			},
		},
		Issues: []internal.Issue{{RowNo: 1, Field: internal.FieldRequestDate, Kind: internal.IssueFieldUnparseable, Raw: "13/40/2022"}},
	}
}

func TestReplaceBatchAndAggregate(t *testing.T) {
	db, err := Open()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.ReplaceBatch(ctx, testBatch()))
	n, err := db.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cols, rows, err := db.Aggregate(ctx, `SELECT gender, COUNT(*), SUM(amount) FROM records GROUP BY gender ORDER BY gender`)
	require.NoError(t, err)
	assert.Equal(t, []string{"gender", "COUNT(*)", "SUM(amount)"}, cols)
	require.Len(t, rows, 2)
	assert.Equal(t, "Female", rows[0][0])
	assert.EqualValues(t, 1, rows[0][1])
	assert.EqualValues(t, 250.0, rows[0][2])
	assert.Equal(t, "Unknown", rows[1][0])
	assert.Nil(t, rows[1][2])

	_, rows, err = db.Aggregate(ctx, `SELECT request_date, processing_days, report_year, income_bracket, extraJson FROM records ORDER BY rowNo`)
	require.NoError(t, err)
	assert.Equal(t, "2023-01-10", rows[0][0])
	assert.EqualValues(t, -5, rows[0][1])
	assert.EqualValues(t, 2023, rows[0][2])
	assert.Equal(t, "Unknown", rows[0][3])
	assert.Equal(t, `{"notes":"called back"}`, rows[0][4])
	assert.Equal(t, "Unparseable", rows[1][0])
	assert.Nil(t, rows[1][1])
	assert.Nil(t, rows[1][2])
	assert.Nil(t, rows[1][3])

	_, rows, err = db.Aggregate(ctx, `SELECT field, kind, raw FROM issues`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"request_date", "FIELD_UNPARSEABLE", "13/40/2022"}, rows[0])

	// a second batch replaces the first
	require.NoError(t, db.ReplaceBatch(ctx, internal.CanonicalBatch{}))
	n, err = db.CountRecords(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunsAndMetadata(t *testing.T) {
	db, err := Open()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	_, ok, err := db.GetMetadata(ctx, "source.last_cache_key")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SetMetadata(ctx, "source.last_cache_key", "a"))
	require.NoError(t, db.SetMetadata(ctx, "source.last_cache_key", "b"))
	v, ok, err := db.GetMetadata(ctx, "source.last_cache_key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	for _, trace := range []string{"t1", "t2"} {
		_, err := db.InsertRun(ctx, internal.RunRow{TraceID: trace, SourceName: "export.csv", CacheKey: "k", Records: 3}, map[string]float64{"normalize": 1.5})
		require.NoError(t, err)
	}
	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "t2", runs[0].TraceID)
	assert.Equal(t, 3, runs[1].Records)
}
