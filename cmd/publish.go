package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/export"
	"github.com/pfe-helper/pfe-aggregator/internal/listing"
	"github.com/pfe-helper/pfe-aggregator/internal/secrets"
	"github.com/pfe-helper/pfe-aggregator/internal/sources"
	"github.com/pfe-helper/pfe-aggregator/internal/tracker"
)

const postedYes = "yes"

// fieldUpdater is the part of the tracker the sinks write back to.
type fieldUpdater interface {
	UpdateField(projectID, field, value string) (bool, error)
}

// publisher fans selected projects out to the sinks enabled by flags and
// records each outcome in the tracker.
type publisher struct {
	emails   *export.EmailDrafts
	telegram *export.Telegram
	github   *export.GitHub
	csvPath  string
	force    bool

	tracker fieldUpdater
	logger  *zap.Logger
}

func newPublisher(ctx context.Context, config *Config, opts *runOptions, store *tracker.Store, logger *zap.Logger) *publisher {
	pub := &publisher{tracker: store, logger: logger, force: opts.force}

	if opts.generateEmails {
		contact := export.LoadContact(ctx, sources.Pdftotext{Binary: config.Pdftotext}, config.Output.CV, logger)
		pub.emails = export.NewEmailDrafts(config.Output.Emails, contact, logger)
	}

	if opts.postTelegram {
		token, err := secrets.Load(secrets.Source{
			Name:  "telegram bot token",
			Value: config.Telegram.Token,
			File:  config.Telegram.TokenFile,
			Env:   "TELEGRAM_BOT_TOKEN",
		})
		switch {
		case errors.Is(err, secrets.ErrNotConfigured) || config.Telegram.ChatID == "":
			logger.Warn("telegram credentials not configured; skipping telegram posting")
		case err != nil:
			logger.Fatal("loading telegram token", zap.Error(err))
		default:
			pub.telegram = export.NewTelegram(export.TelegramConfig{Token: token, ChatID: config.Telegram.ChatID}, logger)
		}
	}

	if opts.createIssues {
		token, err := secrets.Load(secrets.Source{
			Name:  "github token",
			Value: config.GitHub.Token,
			File:  config.GitHub.TokenFile,
			Env:   "GITHUB_TOKEN",
		})
		switch {
		case errors.Is(err, secrets.ErrNotConfigured) || config.GitHub.Repo == "":
			logger.Warn("github credentials not configured; skipping issue creation")
		case err != nil:
			logger.Fatal("loading github token", zap.Error(err))
		default:
			pub.github = export.NewGitHub(export.GitHubConfig{Token: token, Repo: config.GitHub.Repo}, logger)
		}
	}

	if opts.saveCSV {
		pub.csvPath = config.Output.CSV
	}

	return pub
}

// Publish runs every configured sink. A sink failure for one project is
// logged and does not stop the others.
func (p *publisher) Publish(ctx context.Context, projects []*listing.Project) error {
	if len(projects) == 0 {
		return nil
	}

	if p.emails != nil {
		drafts, err := p.emails.Generate(projects)
		if err != nil {
			return fmt.Errorf("generating email drafts: %w", err)
		}
		p.record(drafts, "email_draft")
		p.logger.Info("email drafts generated", zap.Int("count", len(drafts)), zap.String("dir", p.emails.Dir))
	}

	if p.telegram != nil {
		posted := p.telegram.PostProjects(ctx, projects)
		values := make(map[string]string, len(posted))
		for _, id := range posted {
			values[id] = postedYes
		}
		p.record(values, "posted_telegram")
		p.logger.Info("posted to telegram", zap.Int("count", len(posted)))
	}

	if p.github != nil {
		issues := p.github.CreateIssues(ctx, projects)
		p.record(issues, "github_issue_url")
		p.logger.Info("github issues created", zap.Int("count", len(issues)))
	}

	if p.csvPath != "" {
		written, err := export.WriteCSV(p.csvPath, projects, p.force)
		if err != nil {
			return fmt.Errorf("saving csv: %w", err)
		}
		if !written {
			p.logger.Warn("csv exists; use --force to overwrite", zap.String("path", p.csvPath))
		} else {
			p.logger.Info("csv saved", zap.String("path", p.csvPath), zap.Int("count", len(projects)))
		}
	}

	return nil
}

func (p *publisher) record(values map[string]string, field string) {
	for id, value := range values {
		if _, err := p.tracker.UpdateField(id, field, value); err != nil {
			p.logger.Warn("updating tracker", zap.String("project_id", id), zap.String("field", field), zap.Error(err))
		}
	}
}
