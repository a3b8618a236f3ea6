package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reThousandsComma = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	reThousandsSpace = regexp.MustCompile(`^\d{1,3}(?: \d{3})+(?:\.\d+)?$`)
	reCurrency       = regexp.MustCompile(`(?i)^(usd|us\$|\$)|(usd)$`)
)

// ParseNumber coerces a money-like cell ("$1,200.50", "(35)", "4000 ") to a
// float. ok is false for anything that is not a plain number after cleanup.
func ParseNumber(input string) (float64, bool) {
	s := CleanText(input)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(s[1:])
	}
	s = strings.TrimSpace(reCurrency.ReplaceAllString(s, ""))
	s = normalizeNumericToken(s)

	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(parsed, 0) || math.IsNaN(parsed) {
		return 0, false
	}
	if negative {
		parsed = -parsed
	}
	return parsed, true
}

func normalizeNumericToken(token string) string {
	if reThousandsComma.MatchString(token) {
		return strings.ReplaceAll(token, ",", "")
	}
	if reThousandsSpace.MatchString(token) {
		return strings.ReplaceAll(token, " ", "")
	}
	return token
}
