// Package sources collects raw PFE listings from web pages and PDF books.
package sources

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
	"github.com/pfe-helper/pfe-aggregator/internal/logger"
)

// DefaultURLs are the pages scraped when the configuration names none.
var DefaultURLs = []string{
	"https://www.pfebook.com/",
	"https://hi-interns.com/internships",
	"https://itgate-group.com/catalogue-pfe/",
	"https://rh.medianet.tn/Fr/stages-pfe-2026_11_50",
	"https://pfebooks.com/",
}

// Source yields raw listings. An unavailable source returns no listings
// and no error; errors are reserved for failures the caller should see.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]listing.RawListing, error)
}

// Collect runs every source in order. Failing sources are logged and
// skipped. Listings are normalized with now.
func Collect(ctx context.Context, sources []Source, now time.Time, log *zap.Logger) []listing.RawListing {
	if log == nil {
		log = zap.NewNop()
	}

	var all []listing.RawListing
	for _, src := range sources {
		if ctx.Err() != nil {
			log.Warn("collection interrupted", zap.Error(ctx.Err()))
			break
		}

		srcLog := logger.WithFields(log, logger.StringFields(logger.StringField{Key: logger.FieldSource, Value: src.Name()})...)
		items, err := src.Fetch(ctx)
		if err != nil {
			srcLog.Warn("error collecting source", zap.Error(err))
			continue
		}

		for _, item := range items {
			all = append(all, item.Normalize(now))
		}
		srcLog.Info("found potential projects", zap.Int("count", len(items)))
	}

	if len(all) == 0 {
		log.Warn("no projects found from sources")
	}
	return all
}
