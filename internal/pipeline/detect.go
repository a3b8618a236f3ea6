package pipeline

import (
	"hopedata/internal"
	"hopedata/internal/util"
)

type DetectResult struct {
	IsRecords bool
	Score     float64
	HeaderRow int
	Reason    string
}

const (
	headerScanRows     = 10
	recognizedForFull  = 8
	minRecordsScore    = 0.25
	headerDiceFallback = 0.8
)

var knownHeaders = KnownHeaders()

// ScoreHeaderRow rates how much a row looks like the records header: one
// point per distinct recognized field, half a point for a near-miss header.
func ScoreHeaderRow(cells []string) float64 {
	seen := map[internal.Field]struct{}{}
	score := 0.0
	for _, cell := range cells {
		key := util.NormalizeHeader(cell)
		if key == "" {
			continue
		}
		if f, ok := headerIndex[key]; ok {
			if _, dup := seen[f]; !dup {
				seen[f] = struct{}{}
				score++
			}
			continue
		}
		if nearKnownHeader(key) {
			score += 0.5
		}
	}
	score /= recognizedForFull
	if score > 1 {
		score = 1
	}
	return score
}

// nearKnownHeader accepts a header close to a known one by bigram overlap,
// or one that carries every word of a known header ("Pt City (current)").
func nearKnownHeader(key string) bool {
	tokens := map[string]struct{}{}
	for _, t := range util.Tokenize(key) {
		tokens[t] = struct{}{}
	}
	for _, known := range knownHeaders {
		if util.DiceCoefficient(key, known) >= headerDiceFallback {
			return true
		}
		words := util.Tokenize(known)
		if len(words) < 2 {
			continue
		}
		all := true
		for _, w := range words {
			if _, ok := tokens[w]; !ok {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// DetectHeaderRow finds the header among the first rows of a sheet; exports
// often carry a title or a blank line above it.
func DetectHeaderRow(rows [][]string) DetectResult {
	best := DetectResult{HeaderRow: -1, Reason: "rules_negative"}
	limit := min(len(rows), headerScanRows)
	for i := 0; i < limit; i++ {
		score := ScoreHeaderRow(rows[i])
		if score > best.Score {
			best.Score = score
			best.HeaderRow = i
		}
	}
	if best.Score >= minRecordsScore {
		best.IsRecords = true
		best.Reason = "rules_positive"
	}
	return best
}
