package export

import (
	"bytes"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/canon"
	"github.com/pfe-helper/pfe-aggregator/internal/listing"
)

var (
	frenchEmail = template.Must(template.New("fr").Funcs(templateFuncs).Parse(`Objet : Candidature PFE - {{ .Project.Title }}

Madame, Monsieur,

Je me permets de vous contacter au sujet du projet de fin d'études « {{ .Project.Title }} »{{ if .Project.Company }} proposé par {{ .Project.Company }}{{ end }}.
Le sujet correspond à mon parcours et je serais ravi d'en discuter avec vous.
{{ if .Project.URL }}
Annonce : {{ .Project.URL }}
{{ end }}
Vous trouverez mon CV en pièce jointe. Je reste disponible pour un entretien à votre convenance.

Cordialement,
{{ .Contact.Name }}
{{ .Contact.Email }}
{{ .Contact.Phone }}
`))

	englishEmail = template.Must(template.New("en").Funcs(templateFuncs).Parse(`Subject: PFE application - {{ .Project.Title }}

Dear Hiring Team,

I am writing about the final-year project "{{ .Project.Title }}"{{ if .Project.Company }} at {{ .Project.Company }}{{ end }}.
The topic matches my background and I would be glad to discuss it with you.
{{ if .Project.URL }}
Posting: {{ .Project.URL }}
{{ end }}
Please find my CV attached. I am available for an interview at your convenience.

Best regards,
{{ .Contact.Name }}
{{ .Contact.Email }}
{{ .Contact.Phone }}
`))
)

type emailData struct {
	Project *listing.Project
	Contact Contact
}

// EmailDrafts renders French and English application drafts into Dir.
type EmailDrafts struct {
	Dir     string
	Contact Contact

	logger *zap.Logger
	now    func() time.Time
}

func NewEmailDrafts(dir string, contact Contact, logger *zap.Logger) *EmailDrafts {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailDrafts{Dir: dir, Contact: contact, logger: logger, now: time.Now}
}

// Render returns the draft file content for one project.
func (e *EmailDrafts) Render(p *listing.Project) (string, error) {
	data := emailData{Project: p, Contact: e.Contact}

	var fr, en bytes.Buffer
	if err := frenchEmail.Execute(&fr, data); err != nil {
		return "", eris.Wrap(err, "email: render french draft")
	}
	if err := englishEmail.Execute(&en, data); err != nil {
		return "", eris.Wrap(err, "email: render english draft")
	}

	return "# French version\n\n" + fr.String() + "\n\n# English version\n\n" + en.String(), nil
}

// Generate writes one draft per project and returns project id to file path.
func (e *EmailDrafts) Generate(projects []*listing.Project) (map[string]string, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "email: create drafts directory")
	}

	today := e.now().Format(listing.DateLayout)
	written := make(map[string]string, len(projects))
	for _, project := range projects {
		content, err := e.Render(project)
		if err != nil {
			return written, err
		}

		slug := project.ProjectID
		if slug == "" {
			slug = canon.ProjectID(project.Title, project.Company)
		}
		path := filepath.Join(e.Dir, today+"_"+slug+".txt")
		if err := atomic.WriteFile(path, bytes.NewReader([]byte(content))); err != nil {
			return written, eris.Wrapf(err, "email: write %s", path)
		}

		e.logger.Debug("email draft written", zap.String("project_id", project.ProjectID), zap.String("path", path))
		written[project.ProjectID] = path
	}
	return written, nil
}
