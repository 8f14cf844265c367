package ui

import (
	"sort"
	"strings"
)

const (
	// DefaultMaxDistance is the default maximum edit distance to consider for fuzzy matching
	DefaultMaxDistance = 3
	// DefaultMaxSuggestions is the default maximum number of suggestions to return
	DefaultMaxSuggestions = 3
)

// FindSimilar returns up to DefaultMaxSuggestions candidates within
// DefaultMaxDistance edits of target, closest first. Matching ignores case.
func FindSimilar(target string, candidates []string) []string {
	type match struct {
		value    string
		distance int
	}

	target = strings.ToLower(target)
	var matches []match
	for _, candidate := range candidates {
		if d := LevenshteinDistance(target, strings.ToLower(candidate)); d <= DefaultMaxDistance {
			matches = append(matches, match{candidate, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	result := make([]string, 0, DefaultMaxSuggestions)
	for i := 0; i < len(matches) && i < DefaultMaxSuggestions; i++ {
		result = append(result, matches[i].value)
	}
	return result
}

// LevenshteinDistance returns the number of single-rune edits needed to
// turn s1 into s2.
func LevenshteinDistance(s1, s2 string) int {
	a, b := []rune(s1), []rune(s2)
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
