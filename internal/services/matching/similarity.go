package matching

import (
	"math"
	"regexp"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

var nameSpaceRun = regexp.MustCompile(`\s+`)

// normalizeName lowercases, strips punctuation banks inject into
// narrations and collapses whitespace.
func normalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, ".", "")
	n = strings.ReplaceAll(n, ",", "")
	n = strings.ReplaceAll(n, "-", " ")
	return nameSpaceRun.ReplaceAllString(n, " ")
}

// NameSimilarity scores how much of the expected payer name appears in
// the received name, as a 0-100 percentage over the expected tokens.
// A token counts as present on exact equality, substring containment
// (banks truncate: "AMITHY ONE M"), or close edit distance. Word order
// does not matter; legal names and bank-displayed names diverge freely.
func NameSimilarity(expected, received string) int {
	expected = normalizeName(expected)
	received = normalizeName(received)

	if expected == "" || received == "" {
		return 0
	}
	if expected == received {
		return 100
	}

	expectedTokens := strings.Fields(expected)
	receivedTokens := strings.Fields(received)

	matched := 0
	for _, want := range expectedTokens {
		for _, got := range receivedTokens {
			if tokensMatch(want, got) {
				matched++
				break
			}
		}
	}
	return int(math.Round(float64(matched) / float64(len(expectedTokens)) * 100))
}

// tokensMatch compares two name tokens leniently.
func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen < 4 {
		return false
	}
	distance := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	return 1-float64(distance)/float64(maxLen) >= 0.8
}
