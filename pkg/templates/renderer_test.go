package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var members = []string{"Scribe", "Timekeeper", "Strategist", "Guardian", "FINISH"}

func TestNewRendererLoadsAll(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	for _, name := range All() {
		out, err := renderer.Render(name, &TemplateData{Members: members, CurrentTime: "2025-05-01T09:00:00Z"})
		require.NoError(t, err, "template %s", name)
		assert.NotEmpty(t, out, "template %s", name)
	}
}

func TestRenderSupervisor(t *testing.T) {
	renderer := MustRenderer()

	out, err := renderer.Render(SupervisorTemplate, &TemplateData{Members: members})
	require.NoError(t, err)
	assert.Contains(t, out, "Scribe, Timekeeper, Strategist, Guardian, FINISH")
	assert.Contains(t, out, "Only route.")

	out, err = renderer.Render(SupervisorSelectTemplate, &TemplateData{Members: members})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Given the conversation above, who should act next? Select one: Scribe,"))
}

func TestRenderReaskQuotesInvalidAnswer(t *testing.T) {
	out, err := MustRenderer().Render(SupervisorReaskTemplate, &TemplateData{
		Members: members,
		Extra:   map[string]any{"Invalid": "Accountant"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, `"Accountant"`)
}

func TestRenderTimekeeperIncludesTime(t *testing.T) {
	out, err := MustRenderer().Render(TimekeeperTemplate, &TemplateData{CurrentTime: "2025-05-01T09:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "2025-05-01T09:00:00Z"))
	assert.Contains(t, out, "create_event")
}

func TestRenderOptionalSections(t *testing.T) {
	renderer := MustRenderer()

	out, err := renderer.RenderSimple(StrategistTemplate, nil)
	require.NoError(t, err)
	assert.NotContains(t, out, "Communication analysis")

	out, err = renderer.RenderSimple(StrategistTemplate, map[string]any{"Analysis": "meeting request"})
	require.NoError(t, err)
	assert.Contains(t, out, "Communication analysis from Scribe:\nmeeting request")

	out, err = renderer.RenderSimple(GuardianTemplate, map[string]any{"Plan": "1. work 10h"})
	require.NoError(t, err)
	assert.Contains(t, out, "Proposed plan:\n1. work 10h")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := MustRenderer().Render("missing.tpl.md", nil)
	require.Error(t, err)
}
