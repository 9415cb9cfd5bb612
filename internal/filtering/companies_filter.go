package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

type companiesFilter struct {
	companies []string
}

// NewExcludedCompanies creates a filter that removes projects of companies listed in the config.
func NewExcludedCompanies() Filter {
	return &companiesFilter{}
}

func (f *companiesFilter) Name() string { return "exclude_companies" }

func (f *companiesFilter) Disable(string) {}

func (f *companiesFilter) IsEnabled() bool { return true }

func (f *companiesFilter) Validate(cfg *Config) error {
	f.companies = nil
	if cfg != nil {
		f.companies = append(f.companies, cfg.ExcludeCompanies...)
	}
	return nil
}

func (f *companiesFilter) Apply(_ context.Context, deps Deps, p *listing.Projects) (*listing.Projects, Step, error) {
	initial := p.Len()
	if len(f.companies) == 0 {
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	excluded := p.Exclude(listing.CompanyField, f.companies)
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding projects by companies",
			zap.Strings("excluded_companies", f.companies),
			zap.Strings("excluded_projects", excluded),
			zap.Int("projects_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(excluded), Left: p.Len()}, nil
}

func (f *companiesFilter) Status() Status {
	details := map[string]string{}
	if len(f.companies) > 0 {
		details["companies"] = strings.Join(f.companies, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
