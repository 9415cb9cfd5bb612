package filtering

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

func project(id, company, fitness, date string) *listing.Project {
	return &listing.Project{
		RawListing: listing.RawListing{Title: id, Company: company, DateScraped: date},
		ProjectID:  id,
		Fitness:    fitness,
	}
}

func fixture() []*listing.Project {
	return []*listing.Project{
		project("a", "Acme", "High", "2024-06-01"),
		project("b", "Globex", "Medium", "2024-01-15"),
		project("c", "Initech", "Low", "not a date"),
		project("d", "Umbrella", "high", "2024-05-20T08:30:00"),
		project("e", "Hooli", "", "2024-07-01T00:00:00Z"),
	}
}

func ids(projects []*listing.Project) []string {
	out := make([]string, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.ProjectID)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestSelect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfg    *Config
		expect []string
	}{
		{name: "nil config keeps everything", cfg: nil, expect: []string{"a", "b", "c", "d", "e"}},
		{name: "fitness is case-sensitive", cfg: &Config{Fitness: []string{"High"}}, expect: []string{"a"}},
		{name: "fitness set", cfg: &Config{Fitness: []string{"High", "Medium"}}, expect: []string{"a", "b"}},
		{name: "empty fitness value", cfg: &Config{Fitness: []string{""}}, expect: []string{"e"}},
		{name: "since keeps unparseable dates", cfg: &Config{Since: date("2024-05-01")}, expect: []string{"a", "c", "d", "e"}},
		{name: "since is inclusive", cfg: &Config{Since: date("2024-06-01")}, expect: []string{"a", "c", "e"}},
		{name: "top truncates in arrival order", cfg: &Config{Top: 2}, expect: []string{"a", "b"}},
		{name: "non-positive top is ignored", cfg: &Config{Top: -1}, expect: []string{"a", "b", "c", "d", "e"}},
		{
			name:   "fitness before since before top",
			cfg:    &Config{Fitness: []string{"High", "Low", "Medium"}, Since: date("2024-05-01"), Top: 1},
			expect: []string{"a"},
		},
		{name: "exclude companies", cfg: &Config{ExcludeCompanies: []string{"Globex", "Hooli"}}, expect: []string{"a", "c", "d"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Select(context.Background(), fixture(), tt.cfg, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !equal(ids(got), tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, ids(got))
			}
		})
	}
}

func TestSelectDoesNotModifyInput(t *testing.T) {
	in := fixture()
	if _, err := Select(context.Background(), in, &Config{Top: 1}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(in) != 5 || in[4].ProjectID != "e" {
		t.Fatalf("input was modified: %v", ids(in))
	}
}

func TestSinceMonotonic(t *testing.T) {
	cutoffs := []string{"2023-12-31", "2024-01-16", "2024-05-21", "2024-06-02", "2024-07-02"}
	prev := -1
	for _, c := range cutoffs {
		got, err := Select(context.Background(), fixture(), &Config{Since: date(c)}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if prev >= 0 && len(got) > prev {
			t.Fatalf("stricter cutoff %s returned more projects (%d > %d)", c, len(got), prev)
		}
		prev = len(got)
	}
	if prev != 1 {
		t.Fatalf("expected only the unparseable project to survive the last cutoff, got %d", prev)
	}
}

func TestParseFitnessFilter(t *testing.T) {
	if got := ParseFitnessFilter(" High, ,Medium "); !equal(got, []string{"High", "Medium"}) {
		t.Fatalf("unexpected values: %v", got)
	}
	if got := ParseFitnessFilter(""); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestSinceDays(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	if SinceDays(0, now) != nil || SinceDays(-3, now) != nil {
		t.Fatalf("expected nil for non-positive days")
	}
	got := SinceDays(7, now)
	if got == nil || !got.Equal(time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected cutoff: %v", got)
	}
}

func TestExcludeFileFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.json")
	excluded := (&listing.Projects{Items: []*listing.Project{project("b", "", "", ""), project("d", "", "", "")}}).ToExcluded(time.Now())
	if err := excluded.ToFile(path); err != nil {
		t.Fatalf("write exclude file: %v", err)
	}

	got, err := Select(context.Background(), fixture(), &Config{ExcludeFile: path}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !equal(ids(got), []string{"a", "c", "e"}) {
		t.Fatalf("unexpected projects: %v", ids(got))
	}
}

func TestExcludeFileMissingIsIgnored(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	path := filepath.Join(t.TempDir(), "missing.json")

	got, err := Select(context.Background(), fixture(), &Config{ExcludeFile: path}, zap.New(core))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected all projects, got %d", len(got))
	}
	if observed.FilterMessage("exclude file not found; nothing excluded").Len() != 1 {
		t.Fatalf("expected a warning about the missing exclude file")
	}
}

func TestExcludeFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	core, observed := observer.New(zapcore.WarnLevel)

	got, err := Select(context.Background(), fixture(), &Config{ExcludeFile: path, Top: 4}, zap.New(core))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !equal(ids(got), []string{"a", "b", "c", "d"}) {
		t.Fatalf("expected later steps to run unfiltered, got %v", ids(got))
	}
	if observed.FilterMessage("exclude file unreadable; nothing excluded").Len() != 1 {
		t.Fatalf("expected a warning about the malformed exclude file")
	}
}

func TestRunLogsSteps(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	steps := Default()
	DisableByName(steps, "exclude_file", "ignored via flag")

	_, err := Run(context.Background(), &Config{Top: 3}, Deps{Logger: logger}, steps, &listing.Projects{Items: fixture()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := observed.FilterMessage("filter step").All()
	if len(entries) != len(steps)-1 {
		t.Fatalf("expected %d step logs, got %d", len(steps)-1, len(entries))
	}
	for _, entry := range entries {
		if entry.ContextMap()["name"] == "exclude_file" {
			t.Fatalf("disabled step must not run")
		}
	}
	last := entries[len(entries)-1].ContextMap()
	if last["name"] != "top" || last["dropped"] != int64(2) || last["left"] != int64(3) {
		t.Fatalf("unexpected top step log: %v", last)
	}
}

func TestDescribe(t *testing.T) {
	steps := Default()
	cfg := &Config{Fitness: []string{"High", "Low"}, Top: 5}
	for _, step := range steps {
		if err := step.Validate(cfg); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	statuses := Describe(steps)
	if len(statuses) != len(steps) {
		t.Fatalf("expected %d statuses, got %d", len(steps), len(statuses))
	}
	if statuses[2].Name != "fitness" || statuses[2].Details["allowed"] != "High,Low" {
		t.Fatalf("unexpected fitness status: %+v", statuses[2])
	}
	if !statuses[1].Enabled {
		t.Fatalf("expected exclude_file to be enabled by default")
	}
	if statuses[4].Details["top"] != "5" {
		t.Fatalf("unexpected top status: %+v", statuses[4])
	}
}
