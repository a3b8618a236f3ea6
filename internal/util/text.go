package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	reHeaderPunct = regexp.MustCompile(`[^a-z0-9]+`)
	reSpaces      = regexp.MustCompile(`\s+`)
)

var missingTokens = map[string]struct{}{
	"":        {},
	"nan":     {},
	"null":    {},
	"none":    {},
	"missing": {},
	"#n/a":    {},
}

// IsMissing reports whether a raw cell carries no value.
func IsMissing(input string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(input))]
	return ok
}

// CleanText applies NFKC folding, collapses whitespace and trims. It never
// changes letter case.
func CleanText(input string) string {
	s := norm.NFKC.String(input)
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// FoldText is CleanText plus lower-casing.
func FoldText(input string) string {
	return strings.ToLower(CleanText(input))
}

// NormalizeHeader folds a column header to a comparison key:
// "Pt. City " and "pt city" both become "pt city".
func NormalizeHeader(input string) string {
	s := FoldText(input)
	s = reHeaderPunct.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func Tokenize(input string) []string {
	parts := strings.Split(NormalizeHeader(input), " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

// Levenshtein is the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}

	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(rb); j++ {
		curr[0] = j
		for i := 1; i <= len(ra); i++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(ra)]
}

// Similarity scores a against b in [0,100]; 100 means identical.
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 && lb == 0 {
		return 100
	}
	return 100 * (1 - float64(Levenshtein(a, b))/float64(max(la, lb)))
}

func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}
