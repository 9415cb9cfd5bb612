package filtering

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

type excludeFileFilter struct {
	path     string
	disabled bool
	reason   string
}

// NewExcludeFile creates a filter that removes projects contained in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *excludeFileFilter) IsEnabled() bool { return !f.disabled }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.ExcludeFile)
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, p *listing.Projects) (*listing.Projects, Step, error) {
	initial := p.Len()
	if f.path == "" {
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	excluded, err := listing.GetExcludedProjectsFromFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		if deps.Logger != nil {
			deps.Logger.Warn("exclude file not found; nothing excluded", zap.String("path", f.path))
		}
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.Warn("exclude file unreadable; nothing excluded", zap.String("path", f.path), zap.Error(err))
		}
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	removed := p.Exclude(listing.ProjectIDField, excluded.ProjectIDs())
	if deps.Logger != nil && len(removed) > 0 {
		deps.Logger.Info("excluding projects based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_projects", removed),
			zap.Int("projects_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(removed), Left: p.Len()}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
