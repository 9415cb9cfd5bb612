package books

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	DefaultWindowDays = 5
	stateTimeLayout   = "2006-01-02T15:04:05.000000"
)

// State remembers which books were already announced.
type State struct {
	SeenURLs []string `json:"seen_urls"`
	LastRun  *string  `json:"last_run"`
}

// LoadState reads the state file. A missing or unreadable file yields an empty state.
func LoadState(path string) State {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{SeenURLs: []string{}}
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{SeenURLs: []string{}}
	}
	if st.SeenURLs == nil {
		st.SeenURLs = []string{}
	}
	return st
}

func SaveState(path string, st State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "books: create state directory")
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return eris.Wrap(err, "books: encode state")
	}
	return eris.Wrap(atomic.WriteFile(path, bytes.NewReader(data)), "books: write state")
}

// Sender posts a text message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

type Scraper interface {
	Scrape(ctx context.Context) ([]Entry, error)
}

// Notifier announces books published within the window and not seen before.
type Notifier struct {
	WindowDays int

	scraper   Scraper
	sender    Sender
	statePath string
	logger    *zap.Logger
	now       func() time.Time
}

func NewNotifier(scraper Scraper, sender Sender, statePath string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		WindowDays: DefaultWindowDays,
		scraper:    scraper,
		sender:     sender,
		statePath:  statePath,
		logger:     logger,
		now:        time.Now,
	}
}

// Run announces new books, or a "nothing new" message when there are none,
// and returns the number of books announced.
func (n *Notifier) Run(ctx context.Context) (int, error) {
	now := n.now().UTC()
	since := now.AddDate(0, 0, -n.WindowDays)

	st := LoadState(n.statePath)
	seen := make(map[string]struct{}, len(st.SeenURLs))
	for _, u := range st.SeenURLs {
		seen[u] = struct{}{}
	}

	entries, err := n.scraper.Scrape(ctx)
	if err != nil {
		return 0, err
	}
	n.logger.Info("scraped catalogue entries", zap.Int("count", len(entries)))

	fresh := Fresh(entries, since, seen)
	if len(fresh) == 0 {
		n.logger.Info("no new PFE books found")
		if err := n.sender.Send(ctx, NothingNewMessage(n.WindowDays)); err != nil {
			n.logger.Warn("error posting to telegram", zap.Error(err))
		}
		return 0, n.save(st.SeenURLs, now)
	}

	for _, e := range fresh {
		if err := n.sender.Send(ctx, FormatEntry(e)); err != nil {
			n.logger.Warn("error posting to telegram", zap.String("url", e.URL), zap.Error(err))
		}
		st.SeenURLs = append(st.SeenURLs, e.URL)
	}

	return len(fresh), n.save(st.SeenURLs, now)
}

func (n *Notifier) save(seen []string, now time.Time) error {
	lastRun := now.Format(stateTimeLayout)
	return SaveState(n.statePath, State{SeenURLs: seen, LastRun: &lastRun})
}

// Fresh keeps dated entries published at or after since and not yet seen.
func Fresh(entries []Entry, since time.Time, seen map[string]struct{}) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.PublishedAt.IsZero() || e.PublishedAt.Before(since) {
			continue
		}
		if _, ok := seen[e.URL]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

func FormatEntry(e Entry) string {
	return fmt.Sprintf("New PFE Book: %s\nDate: %s\nLink: %s", e.Title, e.PublishedAt.Format("2006-01-02"), e.URL)
}

func NothingNewMessage(windowDays int) string {
	return fmt.Sprintf("PFEBooks catalogue: Nothing new in the last %d days.", windowDays)
}
