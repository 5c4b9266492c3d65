package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[{{.Label}}] {{.Subject}}
Feeder: {{.FeederID}}{{ if .Region }} ({{.Region}}){{ end }}
Severity: {{.Severity}}
{{- if .Meters }}
Meters: {{.Meters}}
{{- end }}
{{- if .Value }}
Measured: {{.Value}} (limit {{.Threshold}})
{{- end }}
Start Time: {{.StartTime}}
{{- if .Detail }}
Detail: {{.Detail}}
{{- end }}
Suggestion: {{.Suggestion}}
`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Kind       string
	Label      string
	Subject    string
	ID         string
	FeederID   string
	Region     string
	Severity   string
	Meters     string
	Value      string
	Threshold  string
	StartTime  string
	Detail     string
	Suggestion string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("meter-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("notify template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
