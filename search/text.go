package search

import (
	"cmp"
	"slices"
	"strings"
)

// maxFallbackKeywords bounds the substring queries one text fallback issues.
const maxFallbackKeywords = 6

// Stop words dropped before keyword matching
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "any": true, "what": true, "which": true,
	"me": true, "about": true, "tell": true, "show": true, "give": true,
	"fund": true, "guidelines": true, "guideline": true, "rules": true, "rule": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}
	return filtered
}

// keywords returns the distinct content words of query, longest first.
// Long words are the most selective substrings.
func keywords(query string) []string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range tokenizeAndFilter(query) {
		if !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	slices.SortStableFunc(words, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})
	if len(words) > maxFallbackKeywords {
		words = words[:maxFallbackKeywords]
	}
	return words
}

// keywordHits counts how many of words occur in document, ignoring case.
func keywordHits(document string, words []string) int {
	lower := strings.ToLower(document)
	hits := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return hits
}
