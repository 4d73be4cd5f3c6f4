// Package suggest ranks candidates by how closely they match an input.
package suggest

import (
	"slices"
	"strings"

	"github.com/agext/levenshtein"
)

// MinScore is the similarity below which candidates are dropped.
const MinScore = 0.5

type suggestion struct {
	text  string
	score float64
}

// Suggest returns the candidates resembling input, best match first.
func Suggest(input string, candidates []string) []string {
	input = strings.ToLower(input)
	var result []suggestion
	for _, text := range candidates {
		score := Score(input, strings.ToLower(text))
		if score < MinScore {
			continue
		}
		result = append(result, suggestion{text: text, score: score})
	}
	slices.SortStableFunc(result, func(a, b suggestion) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})
	out := make([]string, len(result))
	for i, s := range result {
		out[i] = s.text
	}
	return out
}

// Score is the similarity of given to suggestion, between 0 and 1.
func Score(given, suggestion string) float64 {
	return levenshtein.Similarity(given, suggestion, nil)
}
