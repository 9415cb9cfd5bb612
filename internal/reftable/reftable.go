// Package reftable loads the reference company table from CSV or XLSX.
package reftable

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/fitness"
)

// FitnessColumn is the exact header of the fitness category column.
const FitnessColumn = "Fitness Category"

// CompanyAliases are the accepted company column headers, compared case-insensitively.
var CompanyAliases = []string{"company", "entreprise", "societe", "company name", "nom_societe"}

// Load reads the reference table at path. A missing file yields an empty
// table and a warning.
func Load(path string, logger *zap.Logger) (fitness.Table, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("reference table not found; fitness matching will be limited", zap.String("path", path))
		return fitness.Table{}, nil
	}
	if err != nil {
		return nil, err
	}

	if len(rows) > 0 && companyColumn(rows[0]) < 0 {
		logger.Warn("reference table has no company column; fitness matching disabled",
			zap.String("path", path),
			zap.Strings("accepted", CompanyAliases),
		)
	}

	table := FromRows(rows)
	logger.Debug("reference table loaded", zap.String("path", path), zap.Int("companies", len(table)))
	return table, nil
}

// FromRows builds a table from a header row followed by data rows.
// Rows without a company name are skipped.
func FromRows(rows [][]string) fitness.Table {
	table := fitness.Table{}
	if len(rows) == 0 {
		return table
	}

	header := rows[0]
	companyIdx := companyColumn(header)
	fitnessIdx := -1
	for i, col := range header {
		if headerName(col) == FitnessColumn {
			fitnessIdx = i
			break
		}
	}

	for _, row := range rows[1:] {
		name := fitness.Normalize(cell(row, companyIdx))
		if name == "" {
			continue
		}
		table = append(table, fitness.ReferenceCompany{
			NormalizedName:  name,
			FitnessCategory: strings.TrimSpace(cell(row, fitnessIdx)),
		})
	}
	return table
}

func companyColumn(header []string) int {
	lower := make(map[string]int, len(header))
	for i, col := range header {
		key := strings.ToLower(headerName(col))
		if _, ok := lower[key]; !ok {
			lower[key] = i
		}
	}
	for _, alias := range CompanyAliases {
		if idx, ok := lower[alias]; ok {
			return idx
		}
	}
	return -1
}

// headerName trims whitespace and the UTF-8 byte order mark spreadsheet
// exports put in front of the first header.
func headerName(col string) string {
	return strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "reftable: read csv %s", path)
		}
		rows = append(rows, record)
	}
}

func readXLSX(path string) ([][]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reftable: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("reftable: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
