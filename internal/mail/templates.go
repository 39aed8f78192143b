package mail

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template identifies a templated notification
type Template string

const (
	TemplateAccountCreated     Template = "account_created"
	TemplateOperationalFailure Template = "operational_failure"
)

type templateDef struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[Template]templateDef{
	TemplateAccountCreated: {
		subject: template.Must(template.New("subject").Parse(`Your Field CRM account is ready`)),
		body: template.Must(template.New("body").Parse(`Hello {{.Name}},

An account was created for you in Field CRM with the role {{.Role}}.
{{- if .Modules}}
Modules: {{range $i, $m := .Modules}}{{if $i}}, {{end}}{{$m}}{{end}}
{{- end}}

Sign in with {{.Email}}{{if .AppURL}} at {{.AppURL}}{{end}}.
`)),
	},
	TemplateOperationalFailure: {
		subject: template.Must(template.New("subject").Parse(`[{{.Module}}] {{.Operation}} failed`)),
		body: template.Must(template.New("body").Parse(`The operation "{{.Operation}}" failed in module {{.Module}} at {{.At}}.

{{.Detail}}
`)),
	},
}

// AccountCreatedData fills TemplateAccountCreated
type AccountCreatedData struct {
	Name    string
	Email   string
	Role    string
	Modules []string
	AppURL  string
}

// OperationalFailureData fills TemplateOperationalFailure
type OperationalFailureData struct {
	Module    string
	Operation string
	Detail    string
	At        string
}

// Render executes a template and returns the subject and plain text body
func Render(name Template, data any) (string, string, error) {
	def, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown mail template: %s", name)
	}

	var subject, body bytes.Buffer
	if err := def.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render subject of %s: %w", name, err)
	}
	if err := def.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render body of %s: %w", name, err)
	}
	return subject.String(), body.String(), nil
}
