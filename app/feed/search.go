package feed

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Field weights for relevance scoring. The title dominates, generated
// summaries rank above raw snippets, full content counts least per hit
// because it is the longest field.
const (
	titleWeight   = 3
	summaryWeight = 2
	snippetWeight = 1
	contentWeight = 0.5
)

// ParseQueryTerms splits a raw query on newlines and commas and
// normalizes each term (trimmed, lowercased, blanks dropped).
func ParseQueryTerms(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == ','
	})

	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		term := strings.TrimSpace(lowercase.String(field))
		if term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

// FilterByQuery scores every article against the query terms, drops
// zero-score articles and orders the rest by descending score. Ties keep
// their original order. Empty or blank-only term lists are a pass-through:
// the input is returned unchanged.
func FilterByQuery(articles []Article, queryTerms []string) []Article {
	terms := make([]string, 0, len(queryTerms))
	for _, term := range queryTerms {
		normalized := strings.TrimSpace(lowercase.String(term))
		if normalized != "" {
			terms = append(terms, normalized)
		}
	}

	if len(terms) == 0 {
		return articles
	}

	scored := make([]Article, 0, len(articles))
	for _, article := range articles {
		score := scoreText(article.Title, terms, titleWeight) +
			scoreText(article.Summary, terms, summaryWeight) +
			scoreText(article.ContentSnippet, terms, snippetWeight) +
			scoreText(article.Content, terms, contentWeight)

		if score <= 0 {
			continue
		}

		article.SearchScore = score
		scored = append(scored, article)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].SearchScore > scored[j].SearchScore
	})

	return scored
}

// scoreText scores one field: +10w for a substring hit, +5w per
// word-boundary occurrence, and for terms longer than 4 runes +2w per
// field word that contains or is contained in the term (catches
// inflected forms).
func scoreText(text string, terms []string, weight float64) float64 {
	if text == "" {
		return 0
	}

	lowered := lowercase.String(text)
	var score float64

	for _, term := range terms {
		if strings.Contains(lowered, term) {
			score += 10 * weight
			score += float64(countBoundaryMatches(lowered, term)) * 5 * weight
		}

		if utf8.RuneCountInString(term) > 4 {
			for _, word := range splitWords(lowered) {
				if strings.Contains(word, term) || strings.Contains(term, word) {
					score += 2 * weight
				}
			}
		}
	}

	return score
}

// countBoundaryMatches counts non-overlapping occurrences of term that
// are not adjacent to a letter or digit on either side. Boundaries are
// decided per rune, so this works for Cyrillic and other non-Latin
// scripts where \b-style ASCII boundaries fail.
func countBoundaryMatches(text, term string) int {
	count := 0
	offset := 0

	for {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			break
		}

		start := offset + idx
		end := start + len(term)
		if !isWordRuneBefore(text, start) && !isWordRuneAt(text, end) {
			count++
		}
		offset = end
	}

	return count
}

func isWordRuneBefore(text string, idx int) bool {
	if idx <= 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:idx])
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isWordRuneAt(text string, idx int) bool {
	if idx >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[idx:])
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
