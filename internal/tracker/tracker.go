// Package tracker persists the outreach ledger: one CSV row per project
// sighting, keyed by project id.
//
// Appends are never deduplicated, so a project seen in several runs has
// several rows and updates apply to all of them. The store assumes a
// single process owns the file.
package tracker

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

const (
	ColumnProjectID  = "project_id"
	ColumnStatus     = "status"
	ColumnLastAction = "last_action"

	StatusNew = "new"

	// TimestampLayout matches the timestamps written by earlier tracker versions.
	TimestampLayout = "2006-01-02T15:04:05.000000"

	dirPerms  = 0o755
	filePerms = 0o644
)

// Columns is the fixed tracker header, in file order.
var Columns = []string{
	"date_added",
	ColumnProjectID,
	"title",
	"company",
	"fitness",
	"pfe_link",
	"contact_email",
	"posted_telegram",
	"github_issue_url",
	"email_draft",
	ColumnLastAction,
	ColumnStatus,
	"notes",
}

// Record is one typed tracker row.
type Record struct {
	DateAdded      string `mapstructure:"date_added"`
	ProjectID      string `mapstructure:"project_id"`
	Title          string `mapstructure:"title"`
	Company        string `mapstructure:"company"`
	Fitness        string `mapstructure:"fitness"`
	PFELink        string `mapstructure:"pfe_link"`
	ContactEmail   string `mapstructure:"contact_email"`
	PostedTelegram string `mapstructure:"posted_telegram"`
	GitHubIssueURL string `mapstructure:"github_issue_url"`
	EmailDraft     string `mapstructure:"email_draft"`
	LastAction     string `mapstructure:"last_action"`
	Status         string `mapstructure:"status"`
	Notes          string `mapstructure:"notes"`
}

// Values returns the record keyed by column name.
func (r Record) Values() map[string]string {
	return map[string]string{
		"date_added":       r.DateAdded,
		ColumnProjectID:    r.ProjectID,
		"title":            r.Title,
		"company":          r.Company,
		"fitness":          r.Fitness,
		"pfe_link":         r.PFELink,
		"contact_email":    r.ContactEmail,
		"posted_telegram":  r.PostedTelegram,
		"github_issue_url": r.GitHubIssueURL,
		"email_draft":      r.EmailDraft,
		ColumnLastAction:   r.LastAction,
		ColumnStatus:       r.Status,
		"notes":            r.Notes,
	}
}

// Row is a raw tracker row keyed by column. It may carry ad hoc columns.
type Row map[string]string

// Config names the tracker file location.
type Config struct {
	Path string `mapstructure:"path"`
}

// Store reads and mutates the tracker file.
type Store struct {
	path   string
	logger *zap.Logger
	// Now is used for last_action timestamps.
	Now func() time.Time
}

func New(cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   cfg.Path,
		logger: logger,
		Now:    time.Now,
	}
}

func (s *Store) Path() string {
	return s.path
}

// Timestamp returns the current time in tracker format.
func (s *Store) Timestamp() string {
	return s.Now().UTC().Format(TimestampLayout)
}

// EnsureExists creates the tracker with its header if it is absent.
func (s *Store) EnsureExists() error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat tracker: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirPerms); err != nil {
		return fmt.Errorf("create tracker directory: %w", err)
	}

	header, err := encode(Columns, nil)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(header)); err != nil {
		return fmt.Errorf("create tracker: %w", err)
	}
	if err := os.Chmod(s.path, filePerms); err != nil {
		return fmt.Errorf("set tracker permissions: %w", err)
	}

	s.logger.Debug("tracker created", zap.String("path", s.path))
	return nil
}

// Append writes one row in fixed column order. It never checks for an
// existing row with the same project id.
func (s *Store) Append(record Record) error {
	if err := s.EnsureExists(); err != nil {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, filePerms)
	if err != nil {
		return fmt.Errorf("open tracker: %w", err)
	}
	defer file.Close()

	values := record.Values()
	ordered := make([]string, len(Columns))
	for i, col := range Columns {
		ordered[i] = values[col]
	}

	w := csv.NewWriter(file)
	if err := w.Write(ordered); err != nil {
		return fmt.Errorf("append tracker row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("append tracker row: %w", err)
	}
	return nil
}

// UpdateStatus sets status and last_action on every row of projectID.
// It reports false when the tracker is missing or no row matched.
func (s *Store) UpdateStatus(projectID, status string) (bool, error) {
	return s.update(projectID, ColumnStatus, status)
}

// UpdateField sets an arbitrary column and last_action on every row of
// projectID. Unknown columns are added to the header.
func (s *Store) UpdateField(projectID, field, value string) (bool, error) {
	return s.update(projectID, field, value)
}

func (s *Store) update(projectID, field, value string) (bool, error) {
	header, rows, err := s.read()
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("tracker file not found", zap.String("path", s.path))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := s.Timestamp()
	updated := 0
	for _, row := range rows {
		if row[ColumnProjectID] != projectID {
			continue
		}
		row[field] = value
		row[ColumnLastAction] = now
		updated++
	}

	if updated == 0 {
		return false, nil
	}

	header = withColumn(header, field)
	header = withColumn(header, ColumnLastAction)
	if err := s.rewrite(header, rows); err != nil {
		return false, err
	}

	s.logger.Debug("tracker rows updated",
		zap.String("project_id", projectID),
		zap.String("field", field),
		zap.Int("rows", updated),
	)
	return true, nil
}

// Rows returns the header and every row. A missing tracker yields fs.ErrNotExist.
func (s *Store) Rows() ([]string, []Row, error) {
	return s.read()
}

// Records decodes every row into a typed record. Ad hoc columns are dropped.
func (s *Store) Records() ([]Record, error) {
	_, rows, err := s.read()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		var record Record
		if err := mapstructure.Decode(map[string]string(row), &record); err != nil {
			return nil, fmt.Errorf("decode tracker row: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Index maps project ids to their most recent record. Empty when the tracker is absent.
func (s *Store) Index() (map[string]Record, error) {
	records, err := s.Records()
	if err != nil {
		return nil, err
	}

	index := make(map[string]Record, len(records))
	for _, record := range records {
		if record.ProjectID != "" {
			index[record.ProjectID] = record
		}
	}
	return index, nil
}

func (s *Store) read() ([]string, []Row, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return append([]string(nil), Columns...), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read tracker header: %w", err)
	}

	var rows []Row
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read tracker row: %w", err)
		}

		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	return header, rows, nil
}

func (s *Store) rewrite(header []string, rows []Row) error {
	data, err := encode(header, rows)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("rewrite tracker: %w", err)
	}
	return nil
}

func encode(header []string, rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("encode tracker header: %w", err)
	}
	for _, row := range rows {
		values := make([]string, len(header))
		for i, col := range header {
			values[i] = row[col]
		}
		if err := w.Write(values); err != nil {
			return nil, fmt.Errorf("encode tracker row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode tracker: %w", err)
	}
	return buf.Bytes(), nil
}

func withColumn(header []string, col string) []string {
	for _, existing := range header {
		if existing == col {
			return header
		}
	}
	return append(header, col)
}
