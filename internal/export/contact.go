package export

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/sources"
)

const (
	namePlaceholder  = "{MY_NAME}"
	emailPlaceholder = "{MY_EMAIL}"
	phonePlaceholder = "{MY_PHONE}"

	nameScanLines = 10
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s]{7,15}`)
	letter       = regexp.MustCompile(`[A-Za-z]`)
)

// Contact is the applicant signature used in email drafts.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Placeholders is the contact used when the CV cannot be read.
func Placeholders() Contact {
	return Contact{Name: namePlaceholder, Email: emailPlaceholder, Phone: phonePlaceholder}
}

// ParseContact picks an email, a phone number and a name from CV text.
// The name is the first of the leading lines with two words and a letter.
func ParseContact(text string) (Contact, bool) {
	var c Contact
	c.Email = emailPattern.FindString(text)
	c.Phone = strings.TrimSpace(phonePattern.FindString(text))

	scanned := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if scanned == nameScanLines {
			break
		}
		scanned++
		if len(strings.Fields(line)) >= 2 && letter.MatchString(line) {
			c.Name = line
			break
		}
	}

	return c, c.Name != "" || c.Email != "" || c.Phone != ""
}

// LoadContact reads the applicant contact from the CV at cvPath. Missing
// fields fall back to placeholders, with a warning when nothing was found.
func LoadContact(ctx context.Context, extractor sources.TextExtractor, cvPath string, logger *zap.Logger) Contact {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cvPath == "" {
		logger.Warn("no CV configured; email drafts will use placeholders")
		return Placeholders()
	}
	if _, err := os.Stat(cvPath); errors.Is(err, fs.ErrNotExist) {
		logger.Warn("CV not found; email drafts will use placeholders", zap.String("path", cvPath))
		return Placeholders()
	}

	text, err := extractor.Extract(ctx, cvPath)
	if err != nil {
		logger.Warn("failed to read CV; email drafts will use placeholders", zap.String("path", cvPath), zap.Error(err))
		return Placeholders()
	}

	c, ok := ParseContact(text)
	if !ok {
		logger.Warn("could not extract contact info from CV; using placeholders",
			zap.String("path", cvPath),
			zap.Strings("placeholders", []string{namePlaceholder, emailPlaceholder, phonePlaceholder}),
		)
		return Placeholders()
	}

	if c.Name == "" {
		c.Name = namePlaceholder
	}
	if c.Email == "" {
		c.Email = emailPlaceholder
	}
	if c.Phone == "" {
		c.Phone = phonePlaceholder
	}
	return c
}
