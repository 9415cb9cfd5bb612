package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/listing"
	"github.com/pfe-helper/pfe-aggregator/internal/utils"
)

const githubAPIURL = "https://api.github.com"

var issueTemplate = template.Must(template.New("issue").Funcs(templateFuncs).Parse(`## {{ .Title }}

- **Company:** {{ na .Company }}
- **Fitness:** {{ na .Fitness }}{{ if .FitnessMatchApprox }} (approx company match){{ end }}
- **Link:** {{ .URL }}
- **Contact:** {{ na .ContactEmail }}
- **Project ID:** ` + "`{{ .ProjectID }}`" + `
- **Found:** {{ .DateScraped }} on {{ .SourceURL }}

### Description

{{ if .Description }}{{ .Description }}{{ else }}_No description._{{ end }}
`))

var templateFuncs = template.FuncMap{"na": orNA}

type GitHubConfig struct {
	Token string
	// Repo is owner/name.
	Repo string
}

// GitHub opens one issue per project in a repository.
type GitHub struct {
	HTTPClient *http.Client
	APIURL     string

	token  string
	repo   string
	logger *zap.Logger
}

func NewGitHub(cfg GitHubConfig, logger *zap.Logger) *GitHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHub{
		HTTPClient: &http.Client{Timeout: requestTimeout},
		APIURL:     githubAPIURL,
		token:      cfg.Token,
		repo:       strings.Trim(cfg.Repo, "/"),
		logger:     logger,
	}
}

type issueRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type issueResponse struct {
	HTMLURL string `json:"html_url"`
}

// CreateIssue opens an issue for the project and returns its web URL.
func (g *GitHub) CreateIssue(ctx context.Context, p *listing.Project) (string, error) {
	var body bytes.Buffer
	if err := issueTemplate.Execute(&body, p); err != nil {
		return "", eris.Wrap(err, "github: render issue")
	}

	payload, err := json.Marshal(issueRequest{Title: IssueTitle(p), Body: body.String()})
	if err != nil {
		return "", eris.Wrap(err, "github: encode issue")
	}

	endpoint := fmt.Sprintf("%s/repos/%s/issues", g.APIURL, g.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "github: build request")
	}
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "github: request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "github: read response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", eris.Errorf("github: api error %d: %s", resp.StatusCode, utils.TruncateForLog(string(data), maxLoggedBody))
	}

	var created issueResponse
	if err := json.Unmarshal(data, &created); err != nil {
		return "", eris.Wrap(err, "github: decode response")
	}
	return created.HTMLURL, nil
}

// CreateIssues opens issues for every project and returns project id to
// issue URL for those that succeeded.
func (g *GitHub) CreateIssues(ctx context.Context, projects []*listing.Project) map[string]string {
	created := make(map[string]string, len(projects))
	for _, project := range projects {
		if ctx.Err() != nil {
			break
		}
		issueURL, err := g.CreateIssue(ctx, project)
		if err != nil {
			g.logger.Warn("error creating github issue", zap.String("project_id", project.ProjectID), zap.Error(err))
			continue
		}
		g.logger.Debug("github issue created", zap.String("project_id", project.ProjectID), zap.String("url", issueURL))
		created[project.ProjectID] = issueURL
	}
	return created
}

func IssueTitle(p *listing.Project) string {
	return fmt.Sprintf("PFE: %s — %s", p.Title, orNA(p.Company))
}
