package sources

import (
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

var linkStatusHeader = []string{"timestamp", "url", "status", "message"}

// LinkStatusLog appends one CSV row per failed fetch.
type LinkStatusLog struct {
	path string
	mu   sync.Mutex
	Now  func() time.Time
}

func NewLinkStatusLog(path string) *LinkStatusLog {
	return &LinkStatusLog{path: path, Now: time.Now}
}

func (l *LinkStatusLog) Record(pageURL, status, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := os.Stat(l.path)
	isNew := errors.Is(err, fs.ErrNotExist)
	if isNew {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return eris.Wrap(err, "link status: create directory")
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "link status: open")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(linkStatusHeader); err != nil {
			return eris.Wrap(err, "link status: write header")
		}
	}

	message = strings.NewReplacer("\n", " ", "\r", " ").Replace(message)
	ts := l.Now().UTC().Format("2006-01-02T15:04:05.000000")
	if err := w.Write([]string{ts, pageURL, status, message}); err != nil {
		return eris.Wrap(err, "link status: write row")
	}
	w.Flush()
	return eris.Wrap(w.Error(), "link status: flush")
}
