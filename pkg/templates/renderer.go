// Package templates provides template rendering for supervisor and worker prompts.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// TemplateData holds the data for template rendering.
type TemplateData struct {
	Extra             map[string]any `json:"extra,omitempty"`
	Members           []string       `json:"members,omitempty"`
	CurrentTime       string         `json:"current_time,omitempty"`
	ToolDocumentation string         `json:"tool_documentation,omitempty"`
}

// StateTemplate names an embedded prompt template.
type StateTemplate string

const (
	// SupervisorTemplate is the routing system prompt.
	SupervisorTemplate StateTemplate = "supervisor.tpl.md"
	// SupervisorSelectTemplate closes the routing prompt after the conversation.
	SupervisorSelectTemplate StateTemplate = "supervisor_select.tpl.md"
	// SupervisorReaskTemplate corrects an out-of-set routing answer.
	SupervisorReaskTemplate StateTemplate = "supervisor_reask.tpl.md"

	// ScribeTemplate is the Scribe worker system prompt.
	ScribeTemplate StateTemplate = "scribe.tpl.md"
	// TimekeeperTemplate is the Timekeeper worker system prompt.
	TimekeeperTemplate StateTemplate = "timekeeper.tpl.md"
	// StrategistTemplate is the Strategist worker system prompt.
	StrategistTemplate StateTemplate = "strategist.tpl.md"
	// GuardianTemplate is the Guardian worker system prompt.
	GuardianTemplate StateTemplate = "guardian.tpl.md"
	// HandoffTemplate is the user turn sent when a worker's history ends on an assistant turn.
	HandoffTemplate StateTemplate = "handoff.tpl.md"
)

// All lists every embedded template.
func All() []StateTemplate {
	return []StateTemplate{
		SupervisorTemplate,
		SupervisorSelectTemplate,
		SupervisorReaskTemplate,
		ScribeTemplate,
		TimekeeperTemplate,
		StrategistTemplate,
		GuardianTemplate,
		HandoffTemplate,
	}
}

// Renderer handles prompt template rendering. It is safe for concurrent use.
type Renderer struct {
	templates map[StateTemplate]*template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[StateTemplate]*template.Template),
	}

	for _, name := range All() {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"join":     strings.Join,
			"contains": strings.Contains,
		}).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// MustRenderer is NewRenderer for package initialization; embedded templates are
// fixed at build time, so a parse failure is a programming error.
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName StateTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}
	if data == nil {
		data = &TemplateData{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// RenderSimple renders a template with only Extra data set.
func (r *Renderer) RenderSimple(templateName StateTemplate, extra map[string]any) (string, error) {
	return r.Render(templateName, &TemplateData{Extra: extra})
}
