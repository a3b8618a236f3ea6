package pipeline

import (
	"hopedata/internal"
	"hopedata/internal/util"
)

// columnAliases maps normalized header text to fields. The field name itself
// ("request_date" -> "request date") always resolves too, so an exported
// canonical batch can be fed back in.
var columnAliases = []struct {
	Field   internal.Field
	Headers []string
}{
	{internal.FieldPatientID, []string{"patient id", "patient id number", "pt id"}},
	{internal.FieldRequestDate, []string{"grant req date", "grant request date", "request date", "date of request"}},
	{internal.FieldPaymentDate, []string{"payment submitted", "payment date", "support date", "date paid"}},
	{internal.FieldDateOfBirth, []string{"dob", "date of birth", "birth date"}},
	{internal.FieldRequestStatus, []string{"request status", "status"}},
	{internal.FieldApplicationSigned, []string{"application signed", "signed"}},
	{internal.FieldMaritalStatus, []string{"marital status"}},
	{internal.FieldGender, []string{"gender", "sex"}},
	{internal.FieldRace, []string{"race"}},
	{internal.FieldHispanicLatino, []string{"hispanic latino", "hispanic", "ethnicity"}},
	{internal.FieldSexualOrientation, []string{"sexual orientation"}},
	{internal.FieldInsuranceType, []string{"insurance type", "insurance"}},
	{internal.FieldAssistanceType, []string{"type of assistance class", "type of assistance", "assistance type"}},
	{internal.FieldCity, []string{"pt city", "patient city", "city"}},
	{internal.FieldState, []string{"pt state", "patient state", "state"}},
	{internal.FieldMonthlyIncome, []string{"total household gross monthly income", "household gross monthly income", "monthly household income", "monthly income"}},
	{internal.FieldAmount, []string{"amount", "grant amount", "support amount"}},
	{internal.FieldRemainingBalance, []string{"remaining balance", "balance remaining"}},
	{internal.FieldAnnualIncome, nil},
	{internal.FieldIncomeBracket, nil},
	{internal.FieldProcessingDays, nil},
	{internal.FieldReportYear, nil},
}

var headerIndex = buildHeaderIndex()

func buildHeaderIndex() map[string]internal.Field {
	idx := map[string]internal.Field{}
	for _, a := range columnAliases {
		idx[util.NormalizeHeader(string(a.Field))] = a.Field
		for _, h := range a.Headers {
			idx[h] = a.Field
		}
	}
	return idx
}

// ResolveColumn maps a header to its field. Unknown headers keep their
// cleaned original text; a blank header resolves to "".
func ResolveColumn(header string) internal.Field {
	key := util.NormalizeHeader(header)
	if key == "" {
		return ""
	}
	if f, ok := headerIndex[key]; ok {
		return f
	}
	return internal.Field(util.CleanText(header))
}

func IsDerived(field internal.Field) bool {
	switch field {
	case internal.FieldAnnualIncome, internal.FieldIncomeBracket, internal.FieldProcessingDays, internal.FieldReportYear:
		return true
	}
	return false
}

// KnownHeaders lists every alias, used to score candidate header rows.
func KnownHeaders() []string {
	out := []string{}
	for _, a := range columnAliases {
		out = append(out, util.NormalizeHeader(string(a.Field)))
		out = append(out, a.Headers...)
	}
	return out
}
