// Package fitness scores free-text company names against the reference
// company table using token-set Jaccard similarity.
package fitness

import (
	"regexp"
	"strings"
)

var tokenDelimiter = regexp.MustCompile(`[^a-z0-9]+`)

// ReferenceCompany is one row of the fitness table.
type ReferenceCompany struct {
	NormalizedName  string
	FitnessCategory string
}

// Table is the ordered reference table. Order decides ties.
type Table []ReferenceCompany

// Match is the best reference row for a listing company.
type Match struct {
	MatchedCompany string
	Fitness        string
	Score          float64
	Approximate    bool
}

// Normalize lowercases and trims a company name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Tokenize splits a name into its lowercase alphanumeric tokens.
func Tokenize(name string) []string {
	parts := tokenDelimiter.Split(strings.ToLower(name), -1)
	tokens := parts[:0]
	for _, part := range parts {
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

func tokenSet(name string) map[string]struct{} {
	tokens := Tokenize(name)
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b| over the token sets of a and b.
func Jaccard(a, b string) float64 {
	return jaccard(tokenSet(a), tokenSet(b))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	inter := 0
	for token := range a {
		if _, ok := b[token]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Find returns the best match for company in table. The second return is
// false when the table is empty, the company has no tokens, or no row
// shares a token with it.
func Find(company string, table Table) (Match, bool) {
	if len(table) == 0 {
		return Match{}, false
	}

	norm := Normalize(company)
	if norm == "" {
		return Match{}, false
	}

	query := tokenSet(norm)
	if len(query) == 0 {
		return Match{}, false
	}

	bestScore := -1.0
	bestIdx := -1
	for idx, row := range table {
		candidate := strings.TrimSpace(row.NormalizedName)
		if candidate == "" {
			continue
		}
		tokens := tokenSet(candidate)
		if len(tokens) == 0 {
			continue
		}

		// strictly greater keeps the first row on ties
		if score := jaccard(query, tokens); score > bestScore {
			bestScore = score
			bestIdx = idx
		}
	}

	if bestIdx < 0 || bestScore <= 0 {
		return Match{}, false
	}

	best := table[bestIdx]
	return Match{
		MatchedCompany: best.NormalizedName,
		Fitness:        best.FitnessCategory,
		Score:          bestScore,
		Approximate:    best.NormalizedName != norm,
	}, true
}

// Annotate matches every company in order. Entries without a match are nil.
func Annotate(companies []string, table Table) []*Match {
	matches := make([]*Match, len(companies))
	for i, company := range companies {
		if m, ok := Find(company, table); ok {
			matches[i] = &m
		}
	}
	return matches
}
