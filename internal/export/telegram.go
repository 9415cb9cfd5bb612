// Package export publishes selected projects: Telegram posts, GitHub
// issues, email drafts and a flat CSV.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
	"github.com/pfe-helper/pfe-aggregator/internal/utils"
)

const (
	telegramAPIURL = "https://api.telegram.org"
	requestTimeout = 15 * time.Second
	maxLoggedBody  = 300
)

type TelegramConfig struct {
	Token  string
	ChatID string
}

// Telegram posts plain text messages to one chat.
type Telegram struct {
	HTTPClient *http.Client
	APIURL     string

	token  string
	chatID string
	logger *zap.Logger
}

func NewTelegram(cfg TelegramConfig, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{
		HTTPClient: &http.Client{Timeout: requestTimeout},
		APIURL:     telegramAPIURL,
		token:      cfg.Token,
		chatID:     cfg.ChatID,
		logger:     logger,
	}
}

// Send posts one message.
func (t *Telegram) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"chat_id": t.chatID, "text": text})
	if err != nil {
		return eris.Wrap(err, "telegram: encode payload")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.APIURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "telegram: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		// the request url embeds the bot token
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return eris.Wrap(err, "telegram: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return eris.Errorf("telegram: api error %d: %s", resp.StatusCode, utils.TruncateForLog(string(body), maxLoggedBody))
	}
	return nil
}

// PostProjects sends one message per project and returns the ids that were
// posted. API errors are logged and skipped.
func (t *Telegram) PostProjects(ctx context.Context, projects []*listing.Project) []string {
	var posted []string
	for _, project := range projects {
		if ctx.Err() != nil {
			break
		}
		if err := t.Send(ctx, FormatTelegram(project)); err != nil {
			t.logger.Warn("error posting to telegram", zap.String("project_id", project.ProjectID), zap.Error(err))
			continue
		}
		posted = append(posted, project.ProjectID)
	}
	return posted
}

// FormatTelegram renders the message announcing a project.
func FormatTelegram(p *listing.Project) string {
	approx := ""
	if p.FitnessMatchApprox {
		approx = " (approx company match)"
	}
	return fmt.Sprintf("PFE: %s — %s\nFitness: %s%s\nLink: %s",
		p.Title, orNA(p.Company), orNA(p.Fitness), approx, p.URL())
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
