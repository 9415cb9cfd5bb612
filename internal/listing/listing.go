package listing

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	ProjectIDField = "ProjectID"
	CompanyField   = "Company"
	FitnessField   = "Fitness"

	// DateLayout is the layout collaborators use for DateScraped.
	DateLayout = "2006-01-02"
)

// RawListing is one scraped or PDF-extracted candidate before any matching.
type RawListing struct {
	Title        string `json:"title"`
	Company      string `json:"company"`
	Link         string `json:"link"`
	Description  string `json:"description"`
	ContactEmail string `json:"contact_email"`
	SourceURL    string `json:"source_url"`
	DateScraped  string `json:"date_scraped"`
}

// URL returns the listing link, falling back to the page it was found on.
func (r RawListing) URL() string {
	if strings.TrimSpace(r.Link) != "" {
		return r.Link
	}
	return r.SourceURL
}

// Normalize trims free-text fields and fills the scrape date when absent.
func (r RawListing) Normalize(now time.Time) RawListing {
	r.Title = strings.TrimSpace(r.Title)
	r.Company = strings.TrimSpace(r.Company)
	if strings.TrimSpace(r.DateScraped) == "" {
		r.DateScraped = now.Format(DateLayout)
	}
	return r
}

// Project is a canonical listing annotated with its fitness match.
type Project struct {
	RawListing

	ProjectID          string  `json:"project_id"`
	Fitness            string  `json:"fitness"`
	CSVCompanyMatch    string  `json:"csv_company_match"`
	FitnessMatchApprox bool    `json:"fitness_match_approx"`
	FitnessMatchScore  float64 `json:"fitness_match_score"`
}

type Projects struct {
	Items []*Project
}

func (p *Projects) Len() int {
	return len(p.Items)
}

func (p *Projects) FindByID(id string) *Project {
	for _, project := range p.Items {
		if project.ProjectID == id {
			return project
		}
	}
	return nil
}

func (p *Projects) IDs() []string {
	ids := make([]string, 0, len(p.Items))
	for _, project := range p.Items {
		ids = append(ids, project.ProjectID)
	}
	return ids
}

// Keep retains the projects accepted by fn, preserving order, and returns the ids of the dropped ones.
func (p *Projects) Keep(fn func(*Project) bool) []string {
	var dropped []string
	kept := p.Items[:0]
	for _, project := range p.Items {
		if fn(project) {
			kept = append(kept, project)
			continue
		}
		dropped = append(dropped, project.ProjectID)
	}
	p.Items = kept
	return dropped
}

// Truncate cuts the list to the first n projects. Non-positive n is a no-op.
func (p *Projects) Truncate(n int) []string {
	if n <= 0 || n >= len(p.Items) {
		return nil
	}
	dropped := make([]string, 0, len(p.Items)-n)
	for _, project := range p.Items[n:] {
		dropped = append(dropped, project.ProjectID)
	}
	p.Items = p.Items[:n]
	return dropped
}

// Exclude removes projects whose field equals one of the targets, preserving order.
func (p *Projects) Exclude(name string, targets []string) []string {
	set := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		set[target] = struct{}{}
	}
	return p.Keep(func(project *Project) bool {
		_, found := set[project.GetStringField(name)]
		return !found
	})
}

func (pr *Project) GetStringField(name string) string {
	switch name {
	case ProjectIDField:
		return pr.ProjectID
	case CompanyField:
		return pr.Company
	case FitnessField:
		return pr.Fitness
	default:
		return ""
	}
}

// ReportByCompany groups a short summary of each project by its company.
func (p *Projects) ReportByCompany() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, project := range p.Items {
		key := project.Company
		if key == "" {
			key = "N/A"
		}
		if project.Fitness != "" {
			key = fmt.Sprintf("%s (%s)", key, project.Fitness)
		}

		entry := map[string]string{
			"project_id": project.ProjectID,
			"title":      project.Title,
			"url":        project.URL(),
			"scraped":    project.DateScraped,
		}
		if project.CSVCompanyMatch != "" {
			entry["matched_company"] = project.CSVCompanyMatch
			entry["match_score"] = fmt.Sprintf("%.2f", project.FitnessMatchScore)
		}
		if project.FitnessMatchApprox {
			entry["approximate"] = "true"
		}

		report[key] = append(report[key], entry)
	}
	return report
}

func (p *Projects) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "projects_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return file.Name(), nil
}
