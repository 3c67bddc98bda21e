package services

import (
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Ratio returns a 0-100 similarity score between two strings based on
// normalized Levenshtein distance. Case- and whitespace-insensitive.
func Ratio(a, b string) int {
	a = normalizeForMatch(a)
	b = normalizeForMatch(b)
	if a == b {
		return 100
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(dist)/float64(longest))))
}

// TokenSetRatio compares the token sets of two strings, so word order and
// duplicated words do not lower the score. This is the deterministic match
// score used for normalization previews.
func TokenSetRatio(a, b string) int {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 100
	}

	var common, onlyA, onlyB []string
	for t := range tokensA {
		if tokensB[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tokensB {
		if !tokensA[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	score := Ratio(base, withA)
	if s := Ratio(base, withB); s > score {
		score = s
	}
	if s := Ratio(withA, withB); s > score {
		score = s
	}
	return score
}

func normalizeForMatch(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(s)) {
		set[t] = true
	}
	return set
}
