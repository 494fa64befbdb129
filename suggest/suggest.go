// Package suggest offers "did you mean" candidates for mistyped command names.
package suggest

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// threshold is the minimum similarity score required for a string to be considered similar.
const threshold = 0.5

type scored struct {
	name  string
	score float64
}

// FindSimilar returns up to maxResults candidates similar to target, best first.
func FindSimilar(target string, candidates []string, maxResults int) []string {
	target = strings.TrimSpace(target)
	if target == "" || maxResults <= 0 {
		return []string{}
	}

	suggestions := make([]scored, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, name := range candidates {
		if seen[name] {
			continue
		}
		seen[name] = true
		if score := Similarity(target, name); score > threshold {
			suggestions = append(suggestions, scored{name, score})
		}
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].score == suggestions[j].score {
			return suggestions[i].name < suggestions[j].name
		}
		return suggestions[i].score > suggestions[j].score
	})

	result := make([]string, 0, maxResults)
	for i := 0; i < len(suggestions) && i < maxResults; i++ {
		result = append(result, suggestions[i].name)
	}
	return result
}

// Similarity scores a and b between 0 and 1, case-insensitively.
// A prefix of b scores 0.9.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == b {
		return 1.0
	}
	if strings.HasPrefix(b, a) {
		return 0.9
	}

	maxLen := len([]rune(a))
	if n := len([]rune(b)); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0
	}
	distance := levenshtein.Distance(a, b, nil)
	return 1.0 - float64(distance)/float64(maxLen)
}
