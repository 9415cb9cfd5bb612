package filtering

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

// SinceDays returns the cutoff n days before now, or nil when n is not positive.
func SinceDays(n int, now time.Time) *time.Time {
	if n <= 0 {
		return nil
	}
	since := now.UTC().AddDate(0, 0, -n)
	return &since
}

type sinceFilter struct {
	since *time.Time
}

// NewSince creates a filter that drops projects scraped before the configured cutoff.
// Projects with an unparseable scrape date are kept.
func NewSince() Filter {
	return &sinceFilter{}
}

func (f *sinceFilter) Name() string { return "since" }

func (f *sinceFilter) Disable(string) {}

func (f *sinceFilter) IsEnabled() bool { return true }

func (f *sinceFilter) Validate(cfg *Config) error {
	f.since = nil
	if cfg != nil {
		f.since = cfg.Since
	}
	return nil
}

func (f *sinceFilter) Apply(_ context.Context, deps Deps, p *listing.Projects) (*listing.Projects, Step, error) {
	initial := p.Len()
	if f.since == nil {
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	var unparsed []string
	dropped := p.Keep(func(project *listing.Project) bool {
		parsed := listing.ParseDate(project.DateScraped)
		if !parsed.OK {
			unparsed = append(unparsed, project.ProjectID)
			return true
		}
		return !parsed.Time.Before(*f.since)
	})

	if deps.Logger != nil && len(unparsed) > 0 {
		deps.Logger.Warn("keeping projects with unparseable scrape date",
			zap.Strings("projects", unparsed),
		)
	}
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Debug("excluding projects scraped before cutoff",
			zap.Time("since", *f.since),
			zap.Strings("excluded_projects", dropped),
		)
	}

	return p, Step{Initial: initial, Dropped: len(dropped), Left: p.Len()}, nil
}

func (f *sinceFilter) Status() Status {
	details := map[string]string{}
	if f.since != nil {
		details["since"] = f.since.Format(time.RFC3339)
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
