package filtering

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

// Filter represents a single filtering step applied to projects.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, p *listing.Projects) (*listing.Projects, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger *zap.Logger
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Config contains the selection criteria consumed by the filters.
// Zero values disable the corresponding step.
type Config struct {
	Fitness          []string
	Since            *time.Time
	Top              int
	ExcludeCompanies []string
	ExcludeFile      string
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Default returns the selection steps in their fixed order: exclusions,
// then fitness, then since, then top.
func Default() []Filter {
	return []Filter{
		NewExcludedCompanies(),
		NewExcludeFile(),
		NewFitness(),
		NewSince(),
		NewTop(),
	}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied filters sequentially, returning the narrowed project list.
func Run(ctx context.Context, cfg *Config, deps Deps, steps []Filter, p *listing.Projects) (*listing.Projects, error) {
	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			if deps.Logger != nil {
				deps.Logger.Debug("filter disabled", zap.String("name", step.Name()))
			}
			continue
		}

		next, info, err := step.Apply(ctx, deps, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		if deps.Logger != nil {
			deps.Logger.Info("filter step",
				zap.String("name", step.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		p = next
	}

	return p, nil
}

// Select narrows projects with the default steps. The input slice is not modified.
func Select(ctx context.Context, projects []*listing.Project, cfg *Config, logger *zap.Logger) ([]*listing.Project, error) {
	items := make([]*listing.Project, len(projects))
	copy(items, projects)

	result, err := Run(ctx, cfg, Deps{Logger: logger}, Default(), &listing.Projects{Items: items})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
