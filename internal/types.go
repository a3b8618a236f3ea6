package internal

import (
	"strconv"
	"time"
)

type Field string

const (
	FieldPatientID         Field = "patient_id"
	FieldRequestDate       Field = "request_date"
	FieldPaymentDate       Field = "payment_date"
	FieldDateOfBirth       Field = "date_of_birth"
	FieldRequestStatus     Field = "request_status"
	FieldApplicationSigned Field = "application_signed"
	FieldMaritalStatus     Field = "marital_status"
	FieldGender            Field = "gender"
	FieldRace              Field = "race"
	FieldHispanicLatino    Field = "hispanic_latino"
	FieldSexualOrientation Field = "sexual_orientation"
	FieldInsuranceType     Field = "insurance_type"
	FieldAssistanceType    Field = "assistance_type"
	FieldCity              Field = "city"
	FieldState             Field = "state"
	FieldMonthlyIncome     Field = "monthly_income"
	FieldAmount            Field = "amount"
	FieldRemainingBalance  Field = "remaining_balance"

	// Derived.
	FieldAnnualIncome   Field = "annual_income"
	FieldIncomeBracket  Field = "income_bracket"
	FieldProcessingDays Field = "processing_days"
	FieldReportYear     Field = "report_year"
)

const (
	SentinelUnknown     = "Unknown"
	SentinelUnparseable = "Unparseable"
)

type CellState string

const (
	StateValid       CellState = "valid"
	StateUnknown     CellState = "unknown"
	StateUnparseable CellState = "unparseable"
)

// Cell holds a typed value or an explicit sentinel state. Value is the zero
// value of T unless State is StateValid.
type Cell[T any] struct {
	Value T
	State CellState
}

func Valid[T any](v T) Cell[T] {
	return Cell[T]{Value: v, State: StateValid}
}

func Unknown[T any]() Cell[T] {
	return Cell[T]{State: StateUnknown}
}

func Unparseable[T any]() Cell[T] {
	return Cell[T]{State: StateUnparseable}
}

func (c Cell[T]) OK() bool {
	return c.State == StateValid
}

// Sentinel returns the sentinel text for a non-valid cell, or "" when valid.
func (c Cell[T]) Sentinel() string {
	switch c.State {
	case StateValid:
		return ""
	case StateUnparseable:
		return SentinelUnparseable
	default:
		return SentinelUnknown
	}
}

// RawBatch is a tabular batch as read from a spreadsheet export: one header
// row and text cells. Column order carries no meaning.
type RawBatch struct {
	Columns []string
	Rows    [][]string
}

type IssueKind string

const (
	IssueFieldUnparseable IssueKind = "FIELD_UNPARSEABLE"
	IssueBelowThreshold   IssueKind = "BELOW_THRESHOLD"
)

type Issue struct {
	RowNo int
	Field Field
	Kind  IssueKind
	Raw   string
}

type CanonicalRecord struct {
	RowNo   int
	Values  map[Field]string
	Dates   map[Field]Cell[time.Time]
	Numbers map[Field]Cell[float64]

	// Derived; nil when a source column is absent from the batch.
	AnnualIncome   *Cell[float64]
	IncomeBracket  *Cell[string]
	ProcessingDays *Cell[int]
	ReportYear     *Cell[int]
}

// Text renders a field of the record the way it is exported: dates as
// 2006-01-02, numbers without trailing zeros, sentinels by name.
func (r CanonicalRecord) Text(field Field) (string, bool) {
	if c, ok := r.Dates[field]; ok {
		if !c.OK() {
			return c.Sentinel(), true
		}
		return c.Value.Format("2006-01-02"), true
	}
	if c, ok := r.Numbers[field]; ok {
		return formatNumber(c), true
	}
	switch field {
	case FieldAnnualIncome:
		if r.AnnualIncome != nil {
			return formatNumber(*r.AnnualIncome), true
		}
		return "", false
	case FieldIncomeBracket:
		if r.IncomeBracket != nil {
			if r.IncomeBracket.OK() {
				return r.IncomeBracket.Value, true
			}
			return r.IncomeBracket.Sentinel(), true
		}
		return "", false
	case FieldProcessingDays:
		if r.ProcessingDays != nil {
			return formatInt(*r.ProcessingDays), true
		}
		return "", false
	case FieldReportYear:
		if r.ReportYear != nil {
			return formatInt(*r.ReportYear), true
		}
		return "", false
	}
	v, ok := r.Values[field]
	return v, ok
}

type CanonicalBatch struct {
	Columns       []Field
	Records       []CanonicalRecord
	Issues        []Issue
	MissingFields []Field
}

func (b CanonicalBatch) HasColumn(field Field) bool {
	for _, c := range b.Columns {
		if c == field {
			return true
		}
	}
	return false
}

func formatNumber(c Cell[float64]) string {
	if !c.OK() {
		return c.Sentinel()
	}
	return strconv.FormatFloat(c.Value, 'f', -1, 64)
}

func formatInt(c Cell[int]) string {
	if !c.OK() {
		return c.Sentinel()
	}
	return strconv.Itoa(c.Value)
}

type RunRow struct {
	ID          int
	TraceID     string
	SourceName  string
	CacheKey    string
	Records     int
	Issues      int
	MissingCols int
	CreatedAt   string
}
