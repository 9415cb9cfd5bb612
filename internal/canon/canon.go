// Package canon assigns stable project identities to raw listings and
// collapses duplicates.
package canon

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pfe-helper/pfe-aggregator/internal/fitness"
	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

// MaxProjectIDLength bounds project ids. Long near-identical titles may collide after truncation.
const MaxProjectIDLength = 80

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// latinFold spells out Latin letters that have no canonical decomposition.
var latinFold = strings.NewReplacer(
	"ß", "ss", "ẞ", "SS",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"đ", "d", "Đ", "D",
	"ð", "d", "Ð", "D",
	"ł", "l", "Ł", "L",
	"þ", "th", "Þ", "TH",
	"ı", "i",
)

// Slugify folds accents, lowercases and joins alphanumeric runs with dashes.
// Letters outside Latin, such as Arabic script, are not transliterated and
// become separators.
func Slugify(s string) string {
	folder := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, latinFold.Replace(s))
	if err != nil {
		folded = latinFold.Replace(s)
	}
	slug := nonSlug.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(slug, "-")
}

// ProjectID derives the project identity from title and company.
func ProjectID(title, company string) string {
	base := strings.TrimSpace(title + " " + company)
	if base == "" {
		base = title
	}
	if base == "" {
		base = company
	}

	slug := Slugify(base)
	if len(slug) > MaxProjectIDLength {
		slug = slug[:MaxProjectIDLength]
	}
	return slug
}

type key struct {
	title   string
	company string
}

// Canonicalize turns raw listings into projects and keeps the best-scoring
// record per exact (title, company) pair. matches is aligned with listings;
// a nil or missing entry stands for "no fitness match". Output follows
// the Deduplicate ordering.
func Canonicalize(listings []listing.RawListing, matches []*fitness.Match) []*listing.Project {
	if len(listings) == 0 {
		return []*listing.Project{}
	}

	projects := make([]*listing.Project, 0, len(listings))
	for i, raw := range listings {
		var m fitness.Match
		if i < len(matches) && matches[i] != nil {
			m = *matches[i]
		}

		projects = append(projects, &listing.Project{
			RawListing:         raw,
			ProjectID:          ProjectID(raw.Title, raw.Company),
			Fitness:            m.Fitness,
			CSVCompanyMatch:    m.MatchedCompany,
			FitnessMatchApprox: m.Approximate,
			FitnessMatchScore:  m.Score,
		})
	}

	return Deduplicate(projects)
}

// Deduplicate keeps the first project per (title, company) after a stable
// descending sort by score, then by scrape date. Unparseable dates rank
// oldest. The input slice is not modified.
func Deduplicate(projects []*listing.Project) []*listing.Project {
	sorted := make([]*listing.Project, len(projects))
	copy(sorted, projects)

	scraped := make(map[*listing.Project]time.Time, len(sorted))
	for _, project := range sorted {
		scraped[project] = listing.ParseDate(project.DateScraped).Time
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.FitnessMatchScore != b.FitnessMatchScore {
			return a.FitnessMatchScore > b.FitnessMatchScore
		}
		return scraped[a].After(scraped[b])
	})

	seen := make(map[key]struct{}, len(sorted))
	result := make([]*listing.Project, 0, len(sorted))
	for _, project := range sorted {
		k := key{title: project.Title, company: project.Company}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, project)
	}
	return result
}
