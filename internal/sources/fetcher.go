package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pfe-helper/pfe-aggregator/internal/utils"
)

const (
	userAgent         = "PFE-AggregatorBot/1.0 (+https://github.com/pfe-helper/pfe-aggregator)"
	defaultTimeout    = 15 * time.Second
	defaultRetryDelay = 2 * time.Second
	defaultRate       = 1.0
)

// ErrUnavailable marks a page that answered with an error status or could
// not be reached after the retry.
var ErrUnavailable = errors.New("page unavailable")

type FetcherConfig struct {
	UserAgent         string        `mapstructure:"user-agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RetryDelay        time.Duration `mapstructure:"retry-delay"`
	RequestsPerSecond float64       `mapstructure:"requests-per-second"`
}

// Fetcher downloads HTML documents politely: requests share a rate limiter
// and transport errors are retried once.
type Fetcher struct {
	HTTPClient *http.Client
	UserAgent  string
	RetryDelay time.Duration

	limiter   *rate.Limiter
	statusLog *LinkStatusLog
	logger    *zap.Logger
}

func NewFetcher(cfg FetcherConfig, statusLog *LinkStatusLog, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = userAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRate
	}

	return &Fetcher{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		UserAgent:  cfg.UserAgent,
		RetryDelay: cfg.RetryDelay,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		statusLog:  statusLog,
		logger:     logger,
	}
}

// Document fetches and parses pageURL. Unreachable pages and HTTP errors
// are recorded in the link status log and reported as ErrUnavailable.
func (f *Fetcher) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	for attempt := 1; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetch: rate limiter")
		}

		resp, err := f.get(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "fetch: context cancelled")
			}
			f.logger.Warn("error fetching page",
				zap.String("url", pageURL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if attempt == 1 {
				if err := utils.WaitFor(ctx, f.RetryDelay); err != nil {
					return nil, eris.Wrap(err, "fetch: context cancelled")
				}
				continue
			}
			f.record(pageURL, "ERROR", err.Error())
			return nil, eris.Wrapf(ErrUnavailable, "fetch %s: %v", pageURL, err)
		}

		if resp.StatusCode >= http.StatusBadRequest {
			resp.Body.Close()
			f.record(pageURL, fmt.Sprintf("HTTP_%d", resp.StatusCode), "")
			return nil, eris.Wrapf(ErrUnavailable, "fetch %s: status %d", pageURL, resp.StatusCode)
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "parse %s", pageURL)
		}
		return doc, nil
	}
}

func (f *Fetcher) get(ctx context.Context, pageURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.UserAgent)
	return f.HTTPClient.Do(req)
}

func (f *Fetcher) record(pageURL, status, message string) {
	if f.statusLog == nil {
		return
	}
	if err := f.statusLog.Record(pageURL, status, message); err != nil {
		f.logger.Warn("recording link status", zap.String("url", pageURL), zap.Error(err))
	}
}
