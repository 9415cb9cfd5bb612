package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

type fitnessFilter struct {
	allow map[string]struct{}
	order []string
}

// NewFitness creates a filter that keeps projects whose fitness is in the configured set.
// Matching is exact and case-sensitive.
func NewFitness() Filter {
	return &fitnessFilter{}
}

func (f *fitnessFilter) Name() string { return "fitness" }

func (f *fitnessFilter) Disable(string) {}

func (f *fitnessFilter) IsEnabled() bool { return true }

func (f *fitnessFilter) Validate(cfg *Config) error {
	f.allow = nil
	f.order = nil
	if cfg == nil || len(cfg.Fitness) == 0 {
		return nil
	}

	f.allow = make(map[string]struct{}, len(cfg.Fitness))
	for _, value := range cfg.Fitness {
		f.allow[value] = struct{}{}
		f.order = append(f.order, value)
	}
	return nil
}

func (f *fitnessFilter) Apply(_ context.Context, deps Deps, p *listing.Projects) (*listing.Projects, Step, error) {
	initial := p.Len()
	if f.allow == nil {
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	dropped := p.Keep(func(project *listing.Project) bool {
		_, ok := f.allow[project.Fitness]
		return ok
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Debug("excluding projects by fitness",
			zap.Strings("allowed", f.order),
			zap.Strings("excluded_projects", dropped),
		)
	}

	return p, Step{Initial: initial, Dropped: len(dropped), Left: p.Len()}, nil
}

func (f *fitnessFilter) Status() Status {
	details := map[string]string{}
	if len(f.order) > 0 {
		details["allowed"] = strings.Join(f.order, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}

// ParseFitnessFilter splits a comma-separated list such as "High, Medium".
// Blank entries are dropped; nil is returned when nothing remains.
func ParseFitnessFilter(arg string) []string {
	var values []string
	for _, part := range strings.Split(arg, ",") {
		if v := strings.TrimSpace(part); v != "" {
			values = append(values, v)
		}
	}
	return values
}
