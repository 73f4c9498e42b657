// Package compose renders response drafts from a ticket and its suggestions.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/rogersf/ticketflow/internal/domain"
)

// DefaultTemplate is the standard support reply.
const DefaultTemplate = `Hi there,

Thanks for reaching out regarding: {{.Subject}}
We understand your concern: "{{.Description}}"

Based on our knowledge, here are some suggestions:
{{- if .Suggestions}}
{{- range .Suggestions}}
- {{.}}
{{- end}}
{{- else}}
We're looking into this.
{{- end}}

If the issue persists, feel free to contact us again.

Best regards,
{{.Signature}}`

// DefaultSignature signs drafts rendered with the default template.
const DefaultSignature = "Support Team"

// templateData is the value the template is executed against.
type templateData struct {
	Subject     string
	Description string
	Suggestions []string
	Signature   string
}

// TemplateComposer renders drafts with text/template. Rendering is a pure
// function of the ticket and suggestions.
type TemplateComposer struct {
	tmpl      *template.Template
	signature string
}

// NewTemplateComposer parses text. Empty text and signature select the defaults.
func NewTemplateComposer(text, signature string) (*TemplateComposer, error) {
	if text == "" {
		text = DefaultTemplate
	}
	if signature == "" {
		signature = DefaultSignature
	}
	tmpl, err := template.New("draft").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse draft template: %w", err)
	}
	return &TemplateComposer{tmpl: tmpl, signature: signature}, nil
}

// Compose renders the draft for ticket.
func (c *TemplateComposer) Compose(_ context.Context, ticket domain.Ticket, suggestions []string) (string, error) {
	var buf bytes.Buffer
	err := c.tmpl.Execute(&buf, templateData{
		Subject:     ticket.Subject,
		Description: ticket.Description,
		Suggestions: suggestions,
		Signature:   c.signature,
	})
	if err != nil {
		return "", fmt.Errorf("render draft: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
