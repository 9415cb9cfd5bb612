// Package books announces new PFE books published on the pfebooks catalogue.
package books

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/sources"
)

const (
	CatalogueURL    = "https://pfebooks.com/catalogue/"
	DefaultMaxPages = 10

	entryPathMarker = "/catalogue/202"
)

// Entry is one book of the catalogue.
type Entry struct {
	Title string
	URL   string
	// PublishedAt is zero when the book page carries no parseable date.
	PublishedAt time.Time
}

// Documents fetches parsed HTML pages.
type Documents interface {
	Document(ctx context.Context, pageURL string) (*goquery.Document, error)
}

// Catalogue walks the paginated catalogue index.
type Catalogue struct {
	BaseURL  string
	MaxPages int

	docs   Documents
	logger *zap.Logger
}

func NewCatalogue(docs Documents, logger *zap.Logger) *Catalogue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalogue{BaseURL: CatalogueURL, MaxPages: DefaultMaxPages, docs: docs, logger: logger}
}

// Scrape returns catalogue entries enriched with their publish dates.
// Pagination stops at the first page without entries, an unavailable page,
// or MaxPages.
func (c *Catalogue) Scrape(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	seen := map[string]struct{}{}

	for page := 1; page <= c.MaxPages; page++ {
		pageURL := c.pageURL(page)
		c.logger.Info("scraping catalogue page", zap.Int("page", page), zap.String("url", pageURL))

		doc, err := c.docs.Document(ctx, pageURL)
		if eris.Is(err, sources.ErrUnavailable) {
			c.logger.Warn("catalogue page unavailable", zap.String("url", pageURL), zap.Error(err))
			break
		}
		if err != nil {
			return entries, err
		}

		pageEntries := Links(doc, pageURL, seen)
		if len(pageEntries) == 0 {
			break
		}

		for _, e := range pageEntries {
			e.PublishedAt = c.publishedAt(ctx, e.URL)
			entries = append(entries, e)
		}
	}

	return entries, nil
}

func (c *Catalogue) pageURL(page int) string {
	if page == 1 {
		return c.BaseURL
	}
	return fmt.Sprintf("%s/page/%d/", strings.TrimSuffix(c.BaseURL, "/"), page)
}

func (c *Catalogue) publishedAt(ctx context.Context, bookURL string) time.Time {
	doc, err := c.docs.Document(ctx, bookURL)
	if err != nil {
		c.logger.Debug("book page unavailable", zap.String("url", bookURL), zap.Error(err))
		return time.Time{}
	}
	t, _ := PublishedAt(doc)
	return t
}

// Links returns the catalogue item links of the index page at pageURL,
// skipping those already in seen. seen is updated.
func Links(doc *goquery.Document, pageURL string, seen map[string]struct{}) []Entry {
	var entries []Entry
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, entryPathMarker) {
			return
		}
		title := strings.Join(strings.Fields(a.Text()), " ")
		if title == "" {
			return
		}
		link := resolve(pageURL, href)
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		entries = append(entries, Entry{Title: title, URL: link})
	})
	return entries
}

var textDateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006"}

// PublishedAt reads a book publish date from, in order: the
// article:published_time meta, a time element's datetime attribute, a time
// element's text, and JSON-LD datePublished. Results are in UTC.
func PublishedAt(doc *goquery.Document) (time.Time, bool) {
	if content, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content"); ok {
		if t, ok := parseISO(content); ok {
			return t, true
		}
	}

	if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if t, ok := parseISO(dt); ok {
			return t, true
		}
	}

	if txt := strings.TrimSpace(doc.Find("time").First().Text()); txt != "" {
		for _, layout := range textDateLayouts {
			if t, err := time.Parse(layout, txt); err == nil {
				return t, true
			}
		}
	}

	var found time.Time
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data map[string]any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		raw, ok := data["datePublished"]
		if !ok {
			return true
		}
		if t, ok := parseISO(fmt.Sprint(raw)); ok {
			found = t
			return false
		}
		return true
	})
	return found, !found.IsZero()
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseISO(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func resolve(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
