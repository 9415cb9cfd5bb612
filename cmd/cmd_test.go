package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pfe-helper/pfe-aggregator/internal/export"
	"github.com/pfe-helper/pfe-aggregator/internal/listing"
	"github.com/pfe-helper/pfe-aggregator/internal/sources"
	"github.com/pfe-helper/pfe-aggregator/internal/tracker"
)

func TestParseStatusArg(t *testing.T) {
	tests := []struct {
		arg     string
		id      string
		status  string
		wantErr bool
	}{
		{arg: "acme-data-acme:contacted", id: "acme-data-acme", status: "contacted"},
		{arg: "a:b:replied", id: "a", status: "b:replied"},
		{arg: "ai-platform-acme-corp:Contacted: follow up 2024-06-01", id: "ai-platform-acme-corp", status: "Contacted: follow up 2024-06-01"},
		{arg: " p1 : new ", id: "p1", status: "new"},
		{arg: "no-colon", wantErr: true},
		{arg: ":status", wantErr: true},
		{arg: "id:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			id, status, err := parseStatusArg(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.status, status)
		})
	}
}

type fakeTracker struct {
	ok      bool
	err     error
	updates []string
}

func (f *fakeTracker) UpdateStatus(id, status string) (bool, error) {
	f.updates = append(f.updates, id+"="+status)
	return f.ok, f.err
}

func (f *fakeTracker) UpdateField(id, field, value string) (bool, error) {
	f.updates = append(f.updates, id+"."+field+"="+value)
	return f.ok, f.err
}

func TestUpdateStatus(t *testing.T) {
	store := &fakeTracker{ok: true}
	require.NoError(t, updateStatus(store, "p1", "contacted", zap.NewNop()))
	assert.Equal(t, []string{"p1=contacted"}, store.updates)

	err := updateStatus(&fakeTracker{}, "missing", "contacted", zap.NewNop())
	assert.ErrorContains(t, err, "not found")

	boom := errors.New("disk full")
	assert.ErrorIs(t, updateStatus(&fakeTracker{err: boom}, "p1", "x", zap.NewNop()), boom)
}

func testConfig() *Config {
	return &Config{
		Sources:  &SourcesConfig{},
		Exclude:  &ExcludeConfig{Companies: []string{"Globex"}},
		Select:   &SelectConfig{Fitness: []string{"High"}, SinceDays: 30, Top: 10},
		Output:   &OutputConfig{},
		Telegram: &TelegramConfig{Token: "secret", ChatID: "42"},
		GitHub:   &GitHubConfig{},
		Books:    &BooksConfig{},
	}
}

func TestBuildCriteria(t *testing.T) {
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	config := testConfig()
	config.ExcludeFile = "exclude.json"

	t.Run("config values", func(t *testing.T) {
		c := buildCriteria(config, "", 0, 0, false, now)
		assert.Equal(t, []string{"High"}, c.Fitness)
		assert.Equal(t, 10, c.Top)
		assert.Equal(t, []string{"Globex"}, c.ExcludeCompanies)
		assert.Equal(t, "exclude.json", c.ExcludeFile)
		require.NotNil(t, c.Since)
		assert.True(t, c.Since.Equal(time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("flags win", func(t *testing.T) {
		c := buildCriteria(config, "Medium, Low", 3, 7, true, now)
		assert.Equal(t, []string{"Medium", "Low"}, c.Fitness)
		assert.Equal(t, 3, c.Top)
		assert.Empty(t, c.ExcludeFile)
		assert.True(t, c.Since.Equal(time.Date(2024, 6, 23, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("no since", func(t *testing.T) {
		cfg := testConfig()
		cfg.Select.SinceDays = 0
		assert.Nil(t, buildCriteria(cfg, "", 0, 0, false, now).Since)
	})
}

func TestBuildSources(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	config := testConfig()

	list := buildSources(config, zap.New(core))
	assert.Len(t, list, len(sources.DefaultURLs))
	assert.Equal(t, 1, observed.FilterMessage("no PFE PDF configured; skipping PDF parsing").Len())

	config.Sources.URLs = []string{"https://example.test/stages"}
	config.Sources.PDFs = []string{"a.pdf", "b.pdf"}
	list = buildSources(config, zap.NewNop())
	require.Len(t, list, 3)
	assert.Equal(t, "https://example.test/stages", list[0].Name())
	assert.Equal(t, "b.pdf", list[2].Name())
}

func TestRedacted(t *testing.T) {
	config := testConfig()
	out := redacted(config)
	assert.Equal(t, "***", out.Telegram.Token)
	assert.Equal(t, "secret", config.Telegram.Token)
	assert.Empty(t, out.GitHub.Token)
}

func TestPublisherRecordsOutcomes(t *testing.T) {
	dir := t.TempDir()
	store := &fakeTracker{ok: true}
	projects := []*listing.Project{{
		RawListing: listing.RawListing{Title: "Data Pipeline", Company: "Acme", DateScraped: "2024-06-01"},
		ProjectID:  "data-pipeline-acme",
		Fitness:    "High",
	}}

	pub := &publisher{
		emails:  export.NewEmailDrafts(filepath.Join(dir, "emails"), export.Placeholders(), nil),
		csvPath: filepath.Join(dir, "out.csv"),
		tracker: store,
		logger:  zap.NewNop(),
	}

	require.NoError(t, pub.Publish(context.Background(), projects))

	require.Len(t, store.updates, 1)
	assert.True(t, strings.HasPrefix(store.updates[0], "data-pipeline-acme.email_draft="))

	data, err := os.ReadFile(pub.csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "data-pipeline-acme")

	// A second publish keeps the existing csv.
	core, observed := observer.New(zapcore.WarnLevel)
	pub.logger = zap.New(core)
	pub.emails = nil
	require.NoError(t, pub.Publish(context.Background(), nil))
	require.NoError(t, pub.Publish(context.Background(), projects))
	assert.Equal(t, 1, observed.FilterMessage("csv exists; use --force to overwrite").Len())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "pfe-aggregator version: dev\n", out.String())
}

func TestCountKnown(t *testing.T) {
	projects := &listing.Projects{Items: []*listing.Project{{ProjectID: "a"}, {ProjectID: "b"}, {ProjectID: "c"}}}
	known := map[string]tracker.Record{"a": {ProjectID: "a"}, "c": {ProjectID: "c"}, "z": {ProjectID: "z"}}
	assert.Equal(t, 2, countKnown(projects, known))
	assert.Zero(t, countKnown(projects, nil))
}
