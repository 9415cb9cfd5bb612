package canon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfe-helper/pfe-aggregator/internal/fitness"
	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "developpement-d-une-application-mobile", Slugify("Développement d'une application mobile"))
	assert.Equal(t, "ai-platform-acme-corp", Slugify("  AI Platform — Acme Corp!! "))
	assert.Equal(t, "", Slugify("***"))
}

func TestSlugify_LatinLetters(t *testing.T) {
	tests := []struct{ in, want string }{
		{in: "Straße Ærø", want: "strasse-aero"},
		{in: "Œuvre Łódź", want: "oeuvre-lodz"},
		{in: "Þór Đặng", want: "thor-dang"},
		{in: "Stage تطوير Sfax", want: "stage-sfax"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestProjectID(t *testing.T) {
	assert.Equal(t, "ai-platform-acme-corp", ProjectID("AI Platform", "Acme Corp"))
	assert.Equal(t, "ai-platform", ProjectID("AI Platform", ""))
	assert.Equal(t, "acme-corp", ProjectID("", "Acme Corp"))
	assert.Equal(t, "", ProjectID("", ""))
	assert.Equal(t, ProjectID("AI Platform", "Acme Corp"), ProjectID("AI Platform", "Acme Corp"))
}

func TestProjectID_Truncated(t *testing.T) {
	long := strings.Repeat("word ", 40)
	a := ProjectID(long+"alpha", "Acme")
	b := ProjectID(long+"beta", "Acme")

	assert.Len(t, a, MaxProjectIDLength)
	// known limitation: truncation collapses long near-duplicate titles
	assert.Equal(t, a, b)
}

func TestCanonicalize_KeepsHighestScore(t *testing.T) {
	listings := []listing.RawListing{
		{Title: "Data Platform", Company: "Acme", DateScraped: "2024-01-01"},
		{Title: "Data Platform", Company: "Acme", DateScraped: "2024-02-01"},
	}
	matches := []*fitness.Match{
		{MatchedCompany: "acme labs", Fitness: "Low", Score: 0.3, Approximate: true},
		{MatchedCompany: "acme", Fitness: "High", Score: 0.8},
	}

	projects := Canonicalize(listings, matches)
	require.Len(t, projects, 1)
	assert.Equal(t, 0.8, projects[0].FitnessMatchScore)
	assert.Equal(t, "High", projects[0].Fitness)
	assert.Equal(t, "2024-02-01", projects[0].DateScraped)
	assert.Equal(t, "data-platform-acme", projects[0].ProjectID)
}

func TestCanonicalize_TiePrefersNewest(t *testing.T) {
	listings := []listing.RawListing{
		{Title: "AI Platform", Company: "Acme Corp", DateScraped: "2024-01-01"},
		{Title: "AI Platform", Company: "Acme Corp", DateScraped: "2024-06-01"},
		{Title: "AI Platform", Company: "Acme Corp", DateScraped: "garbage"},
	}
	matches := []*fitness.Match{{Fitness: "High", Score: 1}, {Fitness: "High", Score: 1}, {Fitness: "High", Score: 1}}

	projects := Canonicalize(listings, matches)
	require.Len(t, projects, 1)
	assert.Equal(t, "2024-06-01", projects[0].DateScraped)
}

func TestCanonicalize_TieKeepsFirst(t *testing.T) {
	listings := []listing.RawListing{
		{Title: "X", Company: "Y", SourceURL: "first"},
		{Title: "X", Company: "Y", SourceURL: "second"},
	}

	projects := Canonicalize(listings, nil)
	require.Len(t, projects, 1)
	assert.Equal(t, "first", projects[0].SourceURL)
	assert.Equal(t, 0.0, projects[0].FitnessMatchScore)
	assert.Equal(t, "", projects[0].Fitness)
	assert.False(t, projects[0].FitnessMatchApprox)
}

func TestCanonicalize_DistinctPairsKept(t *testing.T) {
	listings := []listing.RawListing{
		{Title: "X", Company: "Y"},
		{Title: "X", Company: "Z"},
		{Title: "x", Company: "Y"},
	}

	projects := Canonicalize(listings, []*fitness.Match{nil, {Score: 0.5}, nil})
	require.Len(t, projects, 3)
	assert.Equal(t, "Z", projects[0].Company, "higher score sorts first")
}

func TestCanonicalize_Idempotent(t *testing.T) {
	listings := []listing.RawListing{
		{Title: "A", Company: "One"},
		{Title: "B", Company: "Two"},
		{Title: "A", Company: "One"},
	}
	matches := []*fitness.Match{{Score: 0.2}, {Score: 0.9}, {Score: 0.7}}

	first := Canonicalize(listings, matches)
	second := Deduplicate(first)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Same(t, first[i], second[i])
	}
}

func TestCanonicalize_Empty(t *testing.T) {
	projects := Canonicalize(nil, nil)
	assert.NotNil(t, projects)
	assert.Empty(t, projects)
}
