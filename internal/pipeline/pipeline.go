// Package pipeline wires matching, canonicalization, selection and
// tracker bookkeeping into a single aggregation run.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/canon"
	"github.com/pfe-helper/pfe-aggregator/internal/filtering"
	"github.com/pfe-helper/pfe-aggregator/internal/fitness"
	"github.com/pfe-helper/pfe-aggregator/internal/listing"
	"github.com/pfe-helper/pfe-aggregator/internal/logger"
	"github.com/pfe-helper/pfe-aggregator/internal/tracker"
)

// Tracker is the subset of the tracker store a run writes to.
type Tracker interface {
	Append(record tracker.Record) error
	Timestamp() string
}

// Input is everything one run consumes.
type Input struct {
	Listings []listing.RawListing
	Table    fitness.Table
	// Criteria may be nil, which keeps every project.
	Criteria *filtering.Config
	// Limit caps the selected projects after filtering when positive.
	Limit int
}

// Result is the outcome of a run.
type Result struct {
	RunID      string
	Projects   []*listing.Project
	EmptyInput bool
}

type Pipeline struct {
	tracker Tracker
	logger  *zap.Logger
	newID   func() string
}

func New(t Tracker, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		tracker: t,
		logger:  log,
		newID:   uuid.NewString,
	}
}

// Run selects projects from the input and appends one tracker row per
// selected project. Only filter and tracker errors are returned.
func (p *Pipeline) Run(ctx context.Context, in Input) (Result, error) {
	runID := p.newID()
	log := logger.WithRun(p.logger, runID, "")
	result := Result{RunID: runID, Projects: []*listing.Project{}}

	if len(in.Listings) == 0 {
		log.Warn("no listings to process")
		result.EmptyInput = true
		return result, nil
	}

	companies := make([]string, len(in.Listings))
	for i, raw := range in.Listings {
		companies[i] = raw.Company
	}
	matches := fitness.Annotate(companies, in.Table)
	log.Info("matched companies against reference table",
		zap.Int("listings", len(in.Listings)),
		zap.Int("reference_rows", len(in.Table)),
		zap.Int("matched", countMatched(matches)),
	)

	projects := canon.Canonicalize(in.Listings, matches)
	log.Info("canonicalized listings",
		zap.Int("projects", len(projects)),
		zap.Int("duplicates", len(in.Listings)-len(projects)),
	)

	selected, err := filtering.Select(ctx, projects, in.Criteria, log)
	if err != nil {
		return result, fmt.Errorf("selecting projects: %w", err)
	}

	if in.Limit > 0 && len(selected) > in.Limit {
		log.Debug("applying limit", zap.Int("limit", in.Limit), zap.Int("selected", len(selected)))
		selected = selected[:in.Limit]
	}

	for _, project := range selected {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := p.tracker.Append(newRecord(project, p.tracker.Timestamp())); err != nil {
			return result, fmt.Errorf("appending %s to tracker: %w", project.ProjectID, err)
		}
		result.Projects = append(result.Projects, project)
	}

	log.Info("run finished", zap.Int("selected", len(result.Projects)))
	return result, nil
}

func newRecord(project *listing.Project, now string) tracker.Record {
	return tracker.Record{
		DateAdded:    now,
		ProjectID:    project.ProjectID,
		Title:        project.Title,
		Company:      project.Company,
		Fitness:      project.Fitness,
		PFELink:      project.Link,
		ContactEmail: project.ContactEmail,
		LastAction:   now,
		Status:       tracker.StatusNew,
		Notes:        approxNote(project.FitnessMatchApprox),
	}
}

func approxNote(approx bool) string {
	if approx {
		return "fitness_match_approx=True"
	}
	return "fitness_match_approx=False"
}

func countMatched(matches []*fitness.Match) int {
	n := 0
	for _, m := range matches {
		if m != nil {
			n++
		}
	}
	return n
}
