package listing

import (
	"encoding/json"
	"os"
	"time"
)

type ExcludedProjects struct {
	Items []*ExcludedProject
}

type ExcludedProject struct {
	ID         string
	URL        string
	Company    string
	ExcludedAt time.Time
}

func (p *Projects) ToExcluded(now time.Time) *ExcludedProjects {
	excluded := &ExcludedProjects{}
	for _, project := range p.Items {
		excluded.Items = append(excluded.Items, &ExcludedProject{
			ID:         project.ProjectID,
			URL:        project.URL(),
			Company:    project.Company,
			ExcludedAt: now.UTC(),
		})
	}
	return excluded
}

// GetExcludedProjectsFromFile reads an exclude file. An empty file yields an empty list.
func GetExcludedProjectsFromFile(path string) (*ExcludedProjects, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedProjects{}, nil
	}

	var excluded ExcludedProjects
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

func (e *ExcludedProjects) Append(s *ExcludedProjects) {
	e.Items = append(e.Items, s.Items...)
}

func (e *ExcludedProjects) ProjectIDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, project := range e.Items {
		ids = append(ids, project.ID)
	}
	return ids
}

func (e *ExcludedProjects) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}
