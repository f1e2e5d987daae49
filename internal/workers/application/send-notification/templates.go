// internal/workers/application/send-notification/templates.go
package sendnotification

import (
	"fmt"
	"strings"
	"text/template"
)

// message holds the values a template can reference.
type message struct {
	FirstName       string
	ApplicationID   string
	ApplicationType string
	StepTitle       string
	Status          string
	Percentage      string
	Amount          string
	ReceiptNumber   string
	DocumentKind    string
}

type notificationTemplate struct {
	subject *template.Template
	body    *template.Template
	sms     *template.Template
}

var templateSources = map[string][3]string{
	TypeStepCompleted: {
		`{{.ApplicationType}} update: {{.StepTitle}} completed`,
		`Hi {{.FirstName}},

Good news: "{{.StepTitle}}" is now marked complete on your {{.ApplicationType}} application.{{if .Percentage}} You are {{.Percentage}}% of the way there.{{end}}

You can follow every step from your GritSync dashboard.`,
		`GritSync: {{.StepTitle}} completed{{if .Percentage}} ({{.Percentage}}%){{end}}.`,
	},
	TypeStatusChanged: {
		`Your {{.ApplicationType}} application is now {{.Status}}`,
		`Hi {{.FirstName}},

The status of your {{.ApplicationType}} application changed to "{{.Status}}".{{if .Percentage}} Current progress: {{.Percentage}}%.{{end}}`,
		`GritSync: your {{.ApplicationType}} application is now {{.Status}}.`,
	},
	TypePaymentReceived: {
		`Payment received{{if .ReceiptNumber}} ({{.ReceiptNumber}}){{end}}`,
		`Hi {{.FirstName}},

We received your payment of {{.Amount}} for your {{.ApplicationType}} application.{{if .ReceiptNumber}} Your receipt number is {{.ReceiptNumber}}.{{end}}`,
		`GritSync: payment of {{.Amount}} received.`,
	},
	TypeDocumentUploaded: {
		`Document received: {{.DocumentKind}}`,
		`Hi {{.FirstName}},

Your {{.DocumentKind}} was uploaded to your {{.ApplicationType}} application.`,
		`GritSync: {{.DocumentKind}} received.`,
	},
}

func loadTemplates() (map[string]notificationTemplate, error) {
	out := make(map[string]notificationTemplate, len(templateSources))
	for typ, src := range templateSources {
		var t notificationTemplate
		for i, dst := range []**template.Template{&t.subject, &t.body, &t.sms} {
			parsed, err := template.New(fmt.Sprintf("%s.%d", typ, i)).Option("missingkey=error").Parse(src[i])
			if err != nil {
				return nil, fmt.Errorf("parse %s template: %w", typ, err)
			}
			*dst = parsed
		}
		out[typ] = t
	}
	return out, nil
}

func render(t *template.Template, m message) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, m); err != nil {
		return "", err
	}
	return sb.String(), nil
}
