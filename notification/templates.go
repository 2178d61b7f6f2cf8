package notification

import (
	"bytes"
	"casewatch/models"
	"fmt"
	"strings"
	"text/template"
)

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
	sms     *template.Template
}

func mustTemplate(kind models.TemplateKind, subject, body, sms string) messageTemplate {
	name := string(kind)
	return messageTemplate{
		subject: template.Must(template.New(name + ".subject").Option("missingkey=error").Parse(subject)),
		body:    template.Must(template.New(name + ".body").Option("missingkey=error").Parse(body)),
		sms:     template.Must(template.New(name + ".sms").Option("missingkey=error").Parse(sms)),
	}
}

var templates = map[models.TemplateKind]messageTemplate{
	models.TemplateEscalation: mustTemplate(models.TemplateEscalation,
		`[Escalation] Case {{.CaseToken}} overdue in {{.Stage}}`,
		`Case {{.CaseToken}}{{if .CompanyName}} ({{.CompanyName}}){{end}} has been in the {{.Stage}} stage for {{.ElapsedMinutes}} minutes.

Rule "{{.RuleName}}" allows {{.ThresholdMinutes}} minutes; the case is {{.OverdueMinutes}} minutes overdue.
{{- if .CasePriority}}
Current priority: {{.CasePriority}}.
{{- end}}

Please review the case and take action.
`,
		`Case {{.CaseToken}} is {{.OverdueMinutes}} min overdue in {{.Stage}} ({{.RuleName}}).`),

	models.TemplateEscalationResolved: mustTemplate(models.TemplateEscalationResolved,
		`[Resolved] Escalation on case {{.CaseToken}}`,
		`The escalation raised on case {{.CaseToken}} in the {{.Stage}} stage has been resolved.
{{- if .Note}}

Note: {{.Note}}
{{- end}}
`,
		`Escalation on case {{.CaseToken}} resolved.`),

	models.TemplateNewCase: mustTemplate(models.TemplateNewCase,
		`New case {{.CaseToken}}`,
		`A new case {{.CaseToken}} has been submitted{{if .CompanyName}} for {{.CompanyName}}{{end}}.

Please acknowledge and assign it.
`,
		`New case {{.CaseToken}} submitted.`),

	models.TemplateNewMessage: mustTemplate(models.TemplateNewMessage,
		`New message on case {{.CaseToken}}`,
		`The reporter posted a new message on case {{.CaseToken}}.

Sign in to read and reply.
`,
		`New message on case {{.CaseToken}}.`),
}

// Rendered is the subject and body for one channel
type Rendered struct {
	Subject string
	Body    string
}

// Render produces channel-specific content for a template kind. SMS gets the short form and no subject.
func Render(kind models.TemplateKind, channel models.NotificationChannel, payload models.NotificationPayload) (Rendered, error) {
	t, ok := templates[kind]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown template kind %q", kind)
	}

	execute := func(tpl *template.Template) (string, error) {
		var buf bytes.Buffer
		if err := tpl.Execute(&buf, payload); err != nil {
			return "", fmt.Errorf("failed to render %s: %w", tpl.Name(), err)
		}
		return buf.String(), nil
	}

	if channel == models.ChannelSMS {
		body, err := execute(t.sms)
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{Body: strings.TrimSpace(body)}, nil
	}

	subject, err := execute(t.subject)
	if err != nil {
		return Rendered{}, err
	}
	body, err := execute(t.body)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject, Body: body}, nil
}
