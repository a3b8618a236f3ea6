package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"hopedata/internal"
	"hopedata/internal/config"
	"hopedata/internal/util"
)

type RuleKind string

const (
	RuleVocabulary RuleKind = "vocabulary"
	RuleStateAbbr  RuleKind = "state"
	RuleGazetteer  RuleKind = "gazetteer"
	RuleDate       RuleKind = "date"
	RuleNumber     RuleKind = "number"
)

const DefaultNotApplicable = "N/A"

// FieldRule is one row of the normalization table.
type FieldRule struct {
	Field     internal.Field
	Kind      RuleKind
	Vocab     Vocabulary
	Threshold float64
	CaseFold  bool
	Default   string

	// Date only: skip layouts with a two-digit year.
	FourDigitYear bool

	// State only: full name -> abbreviation.
	abbrev   map[string]string
	abbrevOf map[string]string
}

type Bracket struct {
	Upper float64
	Label string
}

// Policy is the read-only normalization table. Build it once with NewPolicy
// and share it; nothing mutates it afterwards.
type Policy struct {
	rules       []FieldRule
	byField     map[internal.Field]int
	dateLayouts []string
	brackets    []Bracket
}

var BracketLabels = []string{
	"Below Poverty Threshold",
	"Between Poverty Threshold and 125% Multiple",
	"Between 125% Multiple and 150% Multiple",
	"Between 150% Multiple and 185% Multiple",
	"Between 185% Multiple and Median Household Income",
	"Above Median Household Income",
}

var (
	requestStatuses = []string{"Approved", "Pending", "Denied"}
	signedValues    = []string{"Yes", "No"}
	maritalStatuses = []string{"Single", "Married", "Divorced", "Separated", "Widowed", "Domestic Partnership"}
	genders         = []string{"Female", "Male", "Nonbinary", "Transgender", "Other", "Decline to Answer"}
	races           = []string{
		"White",
		"Black or African American",
		"American Indian or Alaska Native",
		"Asian",
		"Native Hawaiian or Other Pacific Islander",
		"Two or More Races",
		"Other",
		"Decline to Answer",
	}
	hispanicValues      = []string{"Hispanic or Latino", "Non-Hispanic or Latino", "Decline to Answer"}
	sexualOrientations  = []string{"Straight", "Gay", "Lesbian", "Bisexual", "Asexual", "Other", "Decline to Answer"}
	insuranceTypes      = []string{"Uninsured", "Private", "Medicare", "Medicaid", "Medicare & Medicaid", "Military", "Other"}
	assistanceTypes     = []string{
		"Medical Supplies/Prescription Co-pay(s)",
		"Food/Groceries",
		"Gas",
		"Hotel",
		"Housing",
		"Utilities",
		"Car Payment",
		"Phone/Internet",
		"Multiple",
		"Other",
	}
)

// States is ordered; vocabulary order decides ties.
var States = []struct {
	Name string
	Abbr string
}{
	{"Alabama", "AL"}, {"Alaska", "AK"}, {"Arizona", "AZ"}, {"Arkansas", "AR"},
	{"California", "CA"}, {"Colorado", "CO"}, {"Connecticut", "CT"}, {"Delaware", "DE"},
	{"District of Columbia", "DC"}, {"Florida", "FL"}, {"Georgia", "GA"}, {"Hawaii", "HI"},
	{"Idaho", "ID"}, {"Illinois", "IL"}, {"Indiana", "IN"}, {"Iowa", "IA"},
	{"Kansas", "KS"}, {"Kentucky", "KY"}, {"Louisiana", "LA"}, {"Maine", "ME"},
	{"Maryland", "MD"}, {"Massachusetts", "MA"}, {"Michigan", "MI"}, {"Minnesota", "MN"},
	{"Mississippi", "MS"}, {"Missouri", "MO"}, {"Montana", "MT"}, {"Nebraska", "NE"},
	{"Nevada", "NV"}, {"New Hampshire", "NH"}, {"New Jersey", "NJ"}, {"New Mexico", "NM"},
	{"New York", "NY"}, {"North Carolina", "NC"}, {"North Dakota", "ND"}, {"Ohio", "OH"},
	{"Oklahoma", "OK"}, {"Oregon", "OR"}, {"Pennsylvania", "PA"}, {"Rhode Island", "RI"},
	{"South Carolina", "SC"}, {"South Dakota", "SD"}, {"Tennessee", "TN"}, {"Texas", "TX"},
	{"Utah", "UT"}, {"Vermont", "VT"}, {"Virginia", "VA"}, {"Washington", "WA"},
	{"West Virginia", "WV"}, {"Wisconsin", "WI"}, {"Wyoming", "WY"},
}

// Gazetteer covers the service area (eastern Nebraska and western Iowa).
var Gazetteer = []string{
	"Omaha", "Lincoln", "Bellevue", "Papillion", "La Vista", "Ralston", "Elkhorn",
	"Gretna", "Bennington", "Springfield", "Plattsmouth", "Blair", "Fremont",
	"Wahoo", "Ashland", "Nebraska City", "Grand Island", "Kearney", "Hastings",
	"Norfolk", "Columbus", "North Platte", "Scottsbluff", "Beatrice", "York",
	"Seward", "South Sioux City", "Council Bluffs", "Glenwood", "Missouri Valley",
	"Red Oak", "Shenandoah", "Sioux City", "Des Moines",
}

// NewPolicy builds the policy table from config. Thresholds are per field:
// MatchThreshold for every categorical field, StateMatchThreshold for state
// and CityMatchThreshold for the case-sensitive gazetteer.
func NewPolicy(cfg config.Config) (Policy, error) {
	if len(cfg.IncomeBracketBounds) != len(BracketLabels)-1 {
		return Policy{}, fmt.Errorf("income bracket bounds: want %d values, got %d", len(BracketLabels)-1, len(cfg.IncomeBracketBounds))
	}
	for i := 1; i < len(cfg.IncomeBracketBounds); i++ {
		if cfg.IncomeBracketBounds[i] <= cfg.IncomeBracketBounds[i-1] {
			return Policy{}, fmt.Errorf("income bracket bounds must be strictly increasing")
		}
	}
	if len(cfg.DateLayouts) == 0 {
		return Policy{}, fmt.Errorf("no date layouts configured")
	}

	t := cfg.MatchThreshold
	vocab := func(field internal.Field, entries []string, aliases map[string]string, def string) (FieldRule, error) {
		v, err := NewVocabulary(entries, aliases)
		if err != nil {
			return FieldRule{}, fmt.Errorf("%s: %w", field, err)
		}
		return FieldRule{Field: field, Kind: RuleVocabulary, Vocab: v, Threshold: t, CaseFold: true, Default: def}, nil
	}

	vocabRules := []struct {
		field   internal.Field
		entries []string
		aliases map[string]string
		def     string
	}{
		{internal.FieldRequestStatus, requestStatuses, nil, internal.SentinelUnknown},
		{internal.FieldApplicationSigned, signedValues, map[string]string{"y": "Yes", "n": "No"}, DefaultNotApplicable},
		{internal.FieldMaritalStatus, maritalStatuses, nil, internal.SentinelUnknown},
		{internal.FieldGender, genders, map[string]string{"f": "Female", "m": "Male", "nb": "Nonbinary", "non-binary": "Nonbinary"}, internal.SentinelUnknown},
		{internal.FieldRace, races, nil, internal.SentinelUnknown},
		{internal.FieldHispanicLatino, hispanicValues, map[string]string{"yes": "Hispanic or Latino", "no": "Non-Hispanic or Latino"}, internal.SentinelUnknown},
		{internal.FieldSexualOrientation, sexualOrientations, map[string]string{"heterosexual": "Straight"}, internal.SentinelUnknown},
		{internal.FieldInsuranceType, insuranceTypes, nil, internal.SentinelUnknown},
		{internal.FieldAssistanceType, assistanceTypes, nil, internal.SentinelUnknown},
	}

	p := Policy{
		byField:     map[internal.Field]int{},
		dateLayouts: append([]string(nil), cfg.DateLayouts...),
	}
	for _, s := range vocabRules {
		rule, err := vocab(s.field, s.entries, s.aliases, s.def)
		if err != nil {
			return Policy{}, err
		}
		p.add(rule)
	}

	names := make([]string, 0, len(States))
	abbrev := make(map[string]string, len(States))
	abbrevOf := make(map[string]string, len(States))
	for _, s := range States {
		names = append(names, s.Name)
		abbrev[s.Name] = s.Abbr
		abbrevOf[s.Abbr] = s.Abbr
	}
	stateVocab, err := NewVocabulary(names, nil)
	if err != nil {
		return Policy{}, err
	}
	p.add(FieldRule{Field: internal.FieldState, Kind: RuleStateAbbr, Vocab: stateVocab, Threshold: cfg.StateMatchThreshold, CaseFold: true, abbrev: abbrev, abbrevOf: abbrevOf})

	cityVocab, err := NewVocabulary(Gazetteer, nil)
	if err != nil {
		return Policy{}, err
	}
	p.add(FieldRule{Field: internal.FieldCity, Kind: RuleGazetteer, Vocab: cityVocab, Threshold: cfg.CityMatchThreshold, CaseFold: false})

	p.add(FieldRule{Field: internal.FieldRequestDate, Kind: RuleDate})
	p.add(FieldRule{Field: internal.FieldPaymentDate, Kind: RuleDate})
	// "06" reads 00-68 as 20xx, which puts most birth years in the future.
	p.add(FieldRule{Field: internal.FieldDateOfBirth, Kind: RuleDate, FourDigitYear: true})
	for _, f := range []internal.Field{internal.FieldAmount, internal.FieldRemainingBalance, internal.FieldMonthlyIncome} {
		p.add(FieldRule{Field: f, Kind: RuleNumber})
	}

	for i, upper := range cfg.IncomeBracketBounds {
		p.brackets = append(p.brackets, Bracket{Upper: upper, Label: BracketLabels[i]})
	}
	p.brackets = append(p.brackets, Bracket{Upper: math.Inf(1), Label: BracketLabels[len(BracketLabels)-1]})

	return p, nil
}

// DefaultPolicy is NewPolicy over the built-in defaults.
func DefaultPolicy() Policy {
	p, err := NewPolicy(config.Config{
		MatchThreshold:      70,
		CityMatchThreshold:  80,
		StateMatchThreshold: 70,
		DateLayouts:         config.DefaultDateLayouts,
		IncomeBracketBounds: config.DefaultIncomeBracketBounds,
	})
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) add(rule FieldRule) {
	p.byField[rule.Field] = len(p.rules)
	p.rules = append(p.rules, rule)
}

func (p Policy) Rules() []FieldRule {
	return append([]FieldRule(nil), p.rules...)
}

func (p Policy) Rule(field internal.Field) (FieldRule, bool) {
	i, ok := p.byField[field]
	if !ok {
		return FieldRule{}, false
	}
	return p.rules[i], true
}

func (p Policy) Brackets() []Bracket {
	return append([]Bracket(nil), p.brackets...)
}

func (p Policy) DateLayouts() []string {
	return append([]string(nil), p.dateLayouts...)
}

// BracketFor classifies an annual income. Ranges are right-inclusive.
func (p Policy) BracketFor(annual float64) string {
	for _, b := range p.brackets {
		if annual <= b.Upper {
			return b.Label
		}
	}
	return p.brackets[len(p.brackets)-1].Label
}

// ParseDate tries each layout in order and returns a date at UTC midnight.
func (p Policy) ParseDate(raw string) (time.Time, bool) {
	return p.parseDate(raw, false)
}

// ParseDateFor parses with the layouts the field's rule allows.
func (p Policy) ParseDateFor(rule FieldRule, raw string) (time.Time, bool) {
	return p.parseDate(raw, rule.FourDigitYear)
}

func (p Policy) parseDate(raw string, fourDigitYear bool) (time.Time, bool) {
	s := util.CleanText(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range p.dateLayouts {
		if fourDigitYear && hasTwoDigitYear(layout) {
			continue
		}
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func hasTwoDigitYear(layout string) bool {
	return strings.Contains(strings.ReplaceAll(layout, "2006", ""), "06")
}

// Abbreviation returns the canonical abbreviation when raw already is one.
func (r FieldRule) Abbreviation(raw string) (string, bool) {
	a, ok := r.abbrevOf[strings.ToUpper(util.CleanText(raw))]
	return a, ok
}

// AbbreviationOf maps a matched full state name to its abbreviation.
func (r FieldRule) AbbreviationOf(name string) string {
	return r.abbrev[name]
}
