package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/pkg/agent/llm"
	"aura/pkg/tools"
)

func TestEnsureAlternation(t *testing.T) {
	system, msgs, err := ensureAlternation([]llm.CompletionMessage{
		llm.NewSystemMessage("one"),
		llm.NewUserMessage("hi"),
		llm.NewUserMessage("again"),
		llm.NewAssistantMessage("", llm.ToolCall{ID: "1", Name: "create_event"}),
		llm.NewToolResultMessage(llm.ToolResult{ToolCallID: "1", Name: "create_event", Content: "done"}),
		llm.NewSystemMessage("two"),
	})
	require.NoError(t, err)

	assert.Equal(t, "one\n\ntwo", system)
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi\n\nagain", msgs[0].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "[called tool create_event]", msgs[1].Content)
	assert.Equal(t, "[tool create_event result] done", msgs[2].Content)
}

func TestEnsureAlternationErrors(t *testing.T) {
	_, _, err := ensureAlternation(nil)
	require.Error(t, err)

	_, _, err = ensureAlternation([]llm.CompletionMessage{llm.NewSystemMessage("only")})
	require.Error(t, err)

	_, _, err = ensureAlternation([]llm.CompletionMessage{llm.NewAssistantMessage("first")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first message must be user")

	_, _, err = ensureAlternation([]llm.CompletionMessage{llm.NewUserMessage("q"), llm.NewAssistantMessage("a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last message must be user")
}

func TestConvertTools(t *testing.T) {
	out := convertTools([]tools.ToolDefinition{{
		Name: "route",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"next": {Type: "string", Description: "who acts", Enum: []string{"Scribe", "FINISH"}},
			},
			Required: []string{"next"},
		},
	}})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	assert.Equal(t, "route", out[0].OfTool.Name)
	assert.Equal(t, []string{"next"}, out[0].OfTool.InputSchema.Required)
}

func TestGetModelName(t *testing.T) {
	assert.Equal(t, "claude-sonnet-4-5", NewClaudeClientWithModel("k", "claude-sonnet-4-5").GetModelName())
}
