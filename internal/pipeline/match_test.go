package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hopedata/internal/util"
)

var testGenders = MustVocabulary([]string{"Female", "Male", "Nonbinary", "Other"}, map[string]string{"f": "Female", "m": "Male"})

func TestMatchGenderTypo(t *testing.T) {
	res := Match("femal", testGenders, 70, "Unknown")
	assert.Equal(t, "Female", res.Value)
	assert.True(t, res.Matched)
	assert.Equal(t, ReasonFuzzy, res.Reason)
	assert.InDelta(t, 83.333, res.Score, 0.001)
}

func TestMatchCases(t *testing.T) {
	cases := []struct {
		name   string
		value  string
		want   string
		reason MatchReason
	}{
		{"exact", "Male", "Male", ReasonExact},
		{"case folded", "FEMALE", "Female", ReasonExact},
		{"padded", "  nonbinary ", "Nonbinary", ReasonExact},
		{"alias", "F", "Female", ReasonAlias},
		{"typo", "Femle", "Female", ReasonFuzzy},
		{"garbage", "qwerty", "Unknown", ReasonBelowThreshold},
		{"empty", "", "Unknown", ReasonMissing},
		{"nan token", "NaN", "Unknown", ReasonMissing},
		{"n/a token", "#N/A", "Unknown", ReasonMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Match(tc.value, testGenders, 70, "Unknown")
			assert.Equal(t, tc.want, res.Value)
			assert.Equal(t, tc.reason, res.Reason)
		})
	}
}

func TestMatchDeterministic(t *testing.T) {
	first := Match("Mael", testGenders, 50, "Unknown")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Match("Mael", testGenders, 50, "Unknown"))
	}
}

func TestMatchTieGoesToEarliestEntry(t *testing.T) {
	// "hat" is one edit from both entries.
	catFirst := MustVocabulary([]string{"Cat", "Bat"}, nil)
	batFirst := MustVocabulary([]string{"Bat", "Cat"}, nil)

	assert.Equal(t, "Cat", Match("hat", catFirst, 50, "").Value)
	assert.Equal(t, "Bat", Match("hat", batFirst, 50, "").Value)
}

func TestMatchThresholdBoundary(t *testing.T) {
	vocab := MustVocabulary([]string{"Female"}, nil)
	score := util.Similarity("femal", "female")

	at := Match("femal", vocab, score, "Unknown")
	assert.True(t, at.Matched)
	assert.Equal(t, "Female", at.Value)

	above := Match("femal", vocab, score+1, "Unknown")
	assert.False(t, above.Matched)
	assert.Equal(t, "Unknown", above.Value)
	assert.Equal(t, ReasonBelowThreshold, above.Reason)
}

func TestMatchMissingNeverScores(t *testing.T) {
	calls := 0
	orig := similarity
	similarity = func(a, b string) float64 {
		calls++
		return orig(a, b)
	}
	t.Cleanup(func() { similarity = orig })

	for _, v := range []string{"", "   ", "nan", "NULL", "None", "missing"} {
		assert.Equal(t, "Unknown", MatchOrDefault(v, testGenders, 0, "Unknown", true))
	}
	assert.Zero(t, calls)

	Match("femal", testGenders, 70, "Unknown")
	assert.Equal(t, len(testGenders.Entries()), calls)
}

func TestMatchCaseSensitive(t *testing.T) {
	cities := MustVocabulary([]string{"Omaha", "Lincoln"}, nil)

	// One differing rune out of five.
	res := Match("omaha", cities, 80, "", WithCaseFold(false))
	assert.True(t, res.Matched)
	assert.Equal(t, "Omaha", res.Value)
	assert.InDelta(t, 80, res.Score, 0.001)

	res = Match("OMAHA", cities, 80, "", WithCaseFold(false))
	assert.False(t, res.Matched)
	assert.Equal(t, "", res.Value)

	assert.Equal(t, "Omaha", MatchOrDefault("OMAHA", cities, 80, "", true))
}

func TestNewVocabularyErrors(t *testing.T) {
	_, err := NewVocabulary(nil, nil)
	assert.True(t, errors.Is(err, ErrEmptyVocabulary))

	_, err = NewVocabulary([]string{"Yes", "No"}, map[string]string{"y": "YES"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"YES"`)

	v := MustVocabulary([]string{"Yes", "No"}, nil)
	assert.True(t, v.Contains("No"))
	assert.False(t, v.Contains("no"))
}
