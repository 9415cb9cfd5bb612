package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/natefinch/atomic"
	"github.com/rotisserie/eris"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

// CSVColumns is the header of the aggregated projects file.
var CSVColumns = []string{
	"title",
	"company",
	"link",
	"description",
	"contact_email",
	"source_url",
	"date_scraped",
	"fitness",
	"csv_company_match",
	"fitness_match_approx",
	"fitness_match_score",
	"project_id",
}

// WriteCSV saves projects to path. An existing file is kept unless force
// is set; the returned bool reports whether the file was written.
func WriteCSV(path string, projects []*listing.Project, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, eris.Wrapf(err, "csv: stat %s", path)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVColumns); err != nil {
		return false, eris.Wrap(err, "csv: write header")
	}
	for _, p := range projects {
		if err := w.Write([]string{
			p.Title,
			p.Company,
			p.Link,
			p.Description,
			p.ContactEmail,
			p.SourceURL,
			p.DateScraped,
			p.Fitness,
			p.CSVCompanyMatch,
			boolWord(p.FitnessMatchApprox),
			strconv.FormatFloat(p.FitnessMatchScore, 'f', -1, 64),
			p.ProjectID,
		}); err != nil {
			return false, eris.Wrapf(err, "csv: write %s", p.ProjectID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return false, eris.Wrap(err, "csv: flush")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, eris.Wrap(err, "csv: create directory")
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return false, eris.Wrapf(err, "csv: write %s", path)
	}
	return true, nil
}

// boolWord spells booleans the way tracker notes do.
func boolWord(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
