package filtering

import (
	"context"
	"strconv"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

type topFilter struct {
	top int
}

// NewTop creates a filter that keeps only the first N projects in arrival order.
func NewTop() Filter {
	return &topFilter{}
}

func (f *topFilter) Name() string { return "top" }

func (f *topFilter) Disable(string) {}

func (f *topFilter) IsEnabled() bool { return true }

func (f *topFilter) Validate(cfg *Config) error {
	f.top = 0
	if cfg != nil && cfg.Top > 0 {
		f.top = cfg.Top
	}
	return nil
}

func (f *topFilter) Apply(_ context.Context, _ Deps, p *listing.Projects) (*listing.Projects, Step, error) {
	initial := p.Len()
	dropped := p.Truncate(f.top)
	return p, Step{Initial: initial, Dropped: len(dropped), Left: p.Len()}, nil
}

func (f *topFilter) Status() Status {
	details := map[string]string{}
	if f.top > 0 {
		details["top"] = strconv.Itoa(f.top)
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
