package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"hopedata/internal/util"
)

type MatchReason string

const (
	ReasonExact          MatchReason = "EXACT"
	ReasonAlias          MatchReason = "ALIAS"
	ReasonFuzzy          MatchReason = "FUZZY"
	ReasonMissing        MatchReason = "MISSING"
	ReasonBelowThreshold MatchReason = "BELOW_THRESHOLD"
)

var ErrEmptyVocabulary = errors.New("vocabulary has no entries")

// similarity is swapped in tests to observe scoring calls.
var similarity = util.Similarity

// Vocabulary is an ordered list of canonical values. Order is significant:
// among equally scored entries the earliest one wins.
type Vocabulary struct {
	entries []string
	clean   []string
	folded  []string
	aliases map[string]string
}

// NewVocabulary builds the comparison index for entries once. Alias keys are
// compared case-insensitively; every alias target must be an entry.
func NewVocabulary(entries []string, aliases map[string]string) (Vocabulary, error) {
	if len(entries) == 0 {
		return Vocabulary{}, ErrEmptyVocabulary
	}
	v := Vocabulary{
		entries: make([]string, len(entries)),
		clean:   make([]string, len(entries)),
		folded:  make([]string, len(entries)),
		aliases: make(map[string]string, len(aliases)),
	}
	known := map[string]struct{}{}
	for i, e := range entries {
		v.entries[i] = e
		v.clean[i] = util.CleanText(e)
		v.folded[i] = util.FoldText(e)
		known[e] = struct{}{}
	}
	for alias, target := range aliases {
		if _, ok := known[target]; !ok {
			return Vocabulary{}, fmt.Errorf("alias %q targets %q which is not in the vocabulary", alias, target)
		}
		v.aliases[util.FoldText(alias)] = target
	}
	return v, nil
}

func MustVocabulary(entries []string, aliases map[string]string) Vocabulary {
	v, err := NewVocabulary(entries, aliases)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Vocabulary) Entries() []string {
	return append([]string(nil), v.entries...)
}

func (v Vocabulary) Contains(value string) bool {
	for _, e := range v.entries {
		if e == value {
			return true
		}
	}
	return false
}

type MatchResult struct {
	Value   string
	Score   float64
	Matched bool
	Reason  MatchReason
}

type matchOptions struct {
	caseFold bool
}

type MatchOption func(*matchOptions)

// WithCaseFold toggles lower-casing of both sides before scoring. On by default.
func WithCaseFold(enabled bool) MatchOption {
	return func(o *matchOptions) {
		o.caseFold = enabled
	}
}

// Match returns the vocabulary entry closest to value, or def when value is
// missing or the best score is below threshold. A score equal to threshold
// is accepted.
func Match(value string, vocab Vocabulary, threshold float64, def string, opts ...MatchOption) MatchResult {
	if util.IsMissing(value) {
		return MatchResult{Value: def, Reason: ReasonMissing}
	}

	o := matchOptions{caseFold: true}
	for _, opt := range opts {
		opt(&o)
	}

	if target, ok := vocab.aliases[util.FoldText(value)]; ok {
		return MatchResult{Value: target, Score: 100, Matched: true, Reason: ReasonAlias}
	}

	query := util.CleanText(value)
	candidates := vocab.clean
	if o.caseFold {
		query = strings.ToLower(query)
		candidates = vocab.folded
	}

	best, bestScore := -1, -1.0
	for i, candidate := range candidates {
		score := similarity(query, candidate)
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 || bestScore < threshold {
		return MatchResult{Value: def, Score: max(bestScore, 0), Reason: ReasonBelowThreshold}
	}

	reason := ReasonFuzzy
	if bestScore == 100 {
		reason = ReasonExact
	}
	return MatchResult{Value: vocab.entries[best], Score: bestScore, Matched: true, Reason: reason}
}

// MatchOrDefault is Match reduced to the value.
func MatchOrDefault(value string, vocab Vocabulary, threshold float64, def string, caseFold bool) string {
	return Match(value, vocab, threshold, def, WithCaseFold(caseFold)).Value
}
