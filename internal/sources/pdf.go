package sources

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

const (
	maxPDFTitle     = 150
	defaultPDFTitle = "Projet PFE"
)

var pdfKeywords = []string{"pfe", "projet", "stage"}

// TextExtractor returns the plain text of a document.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Pdftotext shells out to poppler's pdftotext.
type Pdftotext struct {
	Binary string
}

func (p Pdftotext) Extract(ctx context.Context, path string) (string, error) {
	binary := p.Binary
	if binary == "" {
		binary = "pdftotext"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "-enc", "UTF-8", path, "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "pdftotext %s: %s", path, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// PDF extracts listings from a PFE book.
type PDF struct {
	Path string

	extractor TextExtractor
	logger    *zap.Logger
	now       func() time.Time
}

func NewPDF(path string, extractor TextExtractor, logger *zap.Logger) *PDF {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = Pdftotext{}
	}
	return &PDF{Path: path, extractor: extractor, logger: logger, now: time.Now}
}

func (p *PDF) Name() string { return p.Path }

func (p *PDF) Fetch(ctx context.Context) ([]listing.RawListing, error) {
	if _, err := os.Stat(p.Path); errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("PFE PDF not found", zap.String("path", p.Path))
		return nil, nil
	}

	text, err := p.extractor.Extract(ctx, p.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "pdf: extract %s", p.Path)
	}
	if strings.TrimSpace(text) == "" {
		p.logger.Warn("no text extracted from PFE PDF", zap.String("path", p.Path))
		return nil, nil
	}

	items := ExtractEntries(text, p.Path, p.now().UTC().Format(listing.DateLayout))
	p.logger.Info("extracted PFE-like entries", zap.String("path", p.Path), zap.Int("count", len(items)))
	return items, nil
}

// ExtractEntries groups consecutive lines mentioning a PFE keyword into one
// listing each. The title is the first sentence of the block.
func ExtractEntries(text, source, date string) []listing.RawListing {
	var (
		items []listing.RawListing
		block []string
	)

	flush := func() {
		if len(block) == 0 {
			return
		}
		description := strings.Join(block, " ")
		title := truncate(strings.SplitN(description, ".", 2)[0], maxPDFTitle)
		if title == "" {
			title = defaultPDFTitle
		}
		items = append(items, listing.RawListing{
			Title:       title,
			Description: description,
			SourceURL:   source,
			DateScraped: date,
		})
		block = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if containsAny(strings.ToLower(line), pdfKeywords) {
			block = append(block, line)
			continue
		}
		flush()
	}
	flush()

	return items
}
