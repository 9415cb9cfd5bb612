package sources

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

const maxAnchorTitle = 120

// cardLayout describes a site that renders one listing per card element.
type cardLayout struct {
	cards        string
	title        string
	company      string
	description  string
	defaultTitle string
	// fixedCompany is used when the site only lists its own offers.
	fixedCompany string
}

var (
	pfebookLayout = cardLayout{
		cards:        ".job-card, .card, article",
		title:        "h2, h3, .job-title",
		company:      ".company, .company-name, .job-company",
		description:  ".description, .job-description, p",
		defaultTitle: "PFE opportunity",
	}
	hiInternsLayout = cardLayout{
		cards:        ".internship-card, .card, article",
		title:        "h2, h3, .title",
		company:      ".company, .company-name",
		description:  ".description, p",
		defaultTitle: "Internship / PFE",
	}
	medianetLayout = cardLayout{
		cards:        ".job-offer, .card, article",
		title:        "h2, h3, .title",
		description:  ".description, p",
		defaultTitle: "Stage PFE",
		fixedCompany: "Medianet",
	}
)

const itgateCompany = "ITGate Group"

var anchorKeywords = []string{"pfe", "stage", "projet"}

// Web scrapes one listing page. The scraping strategy is chosen from the host.
type Web struct {
	URL string

	fetcher *Fetcher
	logger  *zap.Logger
	now     func() time.Time
}

func NewWeb(pageURL string, fetcher *Fetcher, logger *zap.Logger) *Web {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Web{URL: pageURL, fetcher: fetcher, logger: logger, now: time.Now}
}

func (w *Web) Name() string { return w.URL }

// Fetch returns no listings and no error when the page is unavailable.
func (w *Web) Fetch(ctx context.Context) ([]listing.RawListing, error) {
	w.logger.Info("scraping", zap.String("url", w.URL))

	base, err := url.Parse(w.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "web: parse url %q", w.URL)
	}

	doc, err := w.fetcher.Document(ctx, w.URL)
	if eris.Is(err, ErrUnavailable) {
		w.logger.Warn("page unavailable", zap.String("url", w.URL), zap.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	date := w.now().UTC().Format(listing.DateLayout)
	items := Scrape(doc, base, date)
	w.logger.Debug("scraped page", zap.String("url", w.URL), zap.Int("items", len(items)))
	return items, nil
}

// Scrape extracts listings from a parsed page found at base.
func Scrape(doc *goquery.Document, base *url.URL, date string) []listing.RawListing {
	lower := strings.ToLower(base.String())
	switch {
	case strings.Contains(lower, "pfebook.com"), strings.Contains(lower, "pfebooks.com"):
		return scrapeCards(doc, pfebookLayout, base, date)
	case strings.Contains(lower, "hi-interns.com"):
		return scrapeCards(doc, hiInternsLayout, base, date)
	case strings.Contains(lower, "itgate-group.com"):
		return scrapeITGate(doc, base, date)
	case strings.Contains(lower, "rh.medianet.tn"):
		return scrapeCards(doc, medianetLayout, base, date)
	default:
		return scrapeAnchors(doc, base, date)
	}
}

func scrapeCards(doc *goquery.Document, layout cardLayout, base *url.URL, date string) []listing.RawListing {
	var items []listing.RawListing
	doc.Find(layout.cards).Each(func(_ int, card *goquery.Selection) {
		title := text(card.Find(layout.title).First())
		if title == "" {
			title = layout.defaultTitle
		}

		company := layout.fixedCompany
		if layout.company != "" {
			company = text(card.Find(layout.company).First())
		}

		href, _ := card.Find("a").First().Attr("href")
		items = append(items, listing.RawListing{
			Title:       title,
			Company:     company,
			Link:        resolve(base, href),
			Description: text(card.Find(layout.description).First()),
			SourceURL:   base.String(),
			DateScraped: date,
		})
	})
	return items
}

func scrapeITGate(doc *goquery.Document, base *url.URL, date string) []listing.RawListing {
	var items []listing.RawListing
	doc.Find("li, .pfe-item, article").Each(func(_ int, item *goquery.Selection) {
		body := text(item)
		if body == "" {
			return
		}

		title := text(item.Find("h2, h3").First())
		if title == "" {
			title = truncate(body, maxAnchorTitle)
		}

		href, _ := item.Find("a").First().Attr("href")
		items = append(items, listing.RawListing{
			Title:       title,
			Company:     itgateCompany,
			Link:        resolve(base, href),
			Description: body,
			SourceURL:   base.String(),
			DateScraped: date,
		})
	})
	return items
}

// scrapeAnchors treats every link mentioning a PFE keyword as a listing.
func scrapeAnchors(doc *goquery.Document, base *url.URL, date string) []listing.RawListing {
	var items []listing.RawListing
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		body := text(a)
		if body == "" || !containsAny(strings.ToLower(body), anchorKeywords) {
			return
		}

		href, _ := a.Attr("href")
		items = append(items, listing.RawListing{
			Title:       truncate(body, maxAnchorTitle),
			Link:        resolve(base, href),
			Description: body,
			SourceURL:   base.String(),
			DateScraped: date,
		})
	})
	return items
}

// text returns the selection text with whitespace runs collapsed.
func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return base.String()
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
