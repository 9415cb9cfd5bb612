package books

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfe-helper/pfe-aggregator/internal/sources"
)

type pages map[string]string

func (p pages) Document(_ context.Context, pageURL string) (*goquery.Document, error) {
	html, ok := p[pageURL]
	if !ok {
		return nil, eris.Wrapf(sources.ErrUnavailable, "fetch %s: status 404", pageURL)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestPublishedAt(t *testing.T) {
	tests := []struct {
		name string
		html string
		want time.Time
		ok   bool
	}{
		{
			name: "meta",
			html: `<meta property="article:published_time" content="2024-06-01T10:00:00+02:00">`,
			want: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "time attribute",
			html: `<time datetime="2024-06-02T00:00:00Z">2 juin</time>`,
			want: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "time text",
			html: `<time>03/06/2024</time>`,
			want: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "json-ld",
			html: `<script type="application/ld+json">{"@type":"Book","datePublished":"2024-06-04"}</script>`,
			want: time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "bad meta falls through",
			html: `<meta property="article:published_time" content="soon"><time>2024-06-05</time>`,
			want: time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{name: "none", html: `<p>no date</p>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PublishedAt(doc(t, tt.html))
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "expected %v, got %v", tt.want, got)
		})
	}
}

func TestCatalogueScrape(t *testing.T) {
	base := "https://books.test/catalogue/"
	c := NewCatalogue(pages{
		base: `<a href="/catalogue/2024/ai-book/">AI Book</a>
		       <a href="/catalogue/2024/ai-book/">AI Book again</a>
		       <a href="/about/">About</a>
		       <a href="/catalogue/2024/empty/"> </a>`,
		base + "page/2/": `<a href="https://books.test/catalogue/2024/ai-book/">dup</a>
		                   <a href="/catalogue/2024/web-book/">Web Book</a>`,
		base + "page/3/": `<p>end</p>`,
		"https://books.test/catalogue/2024/ai-book/": `<time datetime="2024-06-01">1 juin</time>`,
	}, nil)
	c.BaseURL = base

	entries, err := c.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "AI Book", entries[0].Title)
	assert.Equal(t, "https://books.test/catalogue/2024/ai-book/", entries[0].URL)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), entries[0].PublishedAt)
	assert.Equal(t, "Web Book", entries[1].Title)
	assert.True(t, entries[1].PublishedAt.IsZero())
}

func TestCatalogueStopsAtMaxPages(t *testing.T) {
	base := "https://books.test/catalogue/"
	c := NewCatalogue(pages{
		base:             `<a href="/catalogue/2024/a/">A</a>`,
		base + "page/2/": `<a href="/catalogue/2024/b/">B</a>`,
	}, nil)
	c.BaseURL = base
	c.MaxPages = 1

	entries, err := c.Scrape(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type fixedScraper []Entry

func (f fixedScraper) Scrape(context.Context) ([]Entry, error) { return f, nil }

type recorder struct {
	messages []string
	err      error
}

func (r *recorder) Send(_ context.Context, text string) error {
	r.messages = append(r.messages, text)
	return r.err
}

func TestNotifierRun(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "data", "pfebooks_state.json")
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, SaveState(statePath, State{SeenURLs: []string{"https://books.test/seen"}}))

	entries := fixedScraper{
		{Title: "New", URL: "https://books.test/new", PublishedAt: time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)},
		{Title: "Seen", URL: "https://books.test/seen", PublishedAt: time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)},
		{Title: "Old", URL: "https://books.test/old", PublishedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{Title: "Undated", URL: "https://books.test/undated"},
	}

	sender := &recorder{}
	n := NewNotifier(entries, sender, statePath, nil)
	n.now = func() time.Time { return now }

	count, err := n.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"New PFE Book: New\nDate: 2024-06-08\nLink: https://books.test/new"}, sender.messages)

	st := LoadState(statePath)
	assert.Equal(t, []string{"https://books.test/seen", "https://books.test/new"}, st.SeenURLs)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, "2024-06-10T12:00:00.000000", *st.LastRun)

	// second run finds nothing new
	sender.messages = nil
	count, err = n.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, []string{"PFEBooks catalogue: Nothing new in the last 5 days."}, sender.messages)
}

func TestNotifierSendFailureStillMarksSeen(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	entries := fixedScraper{{Title: "New", URL: "u", PublishedAt: time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)}}

	n := NewNotifier(entries, &recorder{err: errors.New("telegram down")}, statePath, nil)
	n.now = func() time.Time { return time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC) }

	count, err := n.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"u"}, LoadState(statePath).SeenURLs)
}

func TestLoadStateCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	st := LoadState(path)
	assert.Empty(t, st.SeenURLs)
	assert.Nil(t, st.LastRun)
}
