package state

import "aura/pkg/agent/llm"

// ToCompletionMessages converts conversation history to provider messages.
// Consecutive tool results are grouped into one message, in order.
func ToCompletionMessages(msgs []Message) []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		switch m.Role {
		case RoleSystem:
			out = append(out, llm.NewSystemMessage(m.Content))
		case RoleAssistant:
			calls := make([]llm.ToolCall, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				calls[j] = llm.ToolCall{ID: tc.ID, Name: tc.Name, Parameters: tc.Args}
			}
			out = append(out, llm.NewAssistantMessage(m.Content, calls...))
		case RoleTool:
			result := llm.ToolResult{ToolCallID: m.ToolCallID, Name: m.Name, Content: m.Content}
			if n := len(out); n > 0 && len(out[n-1].ToolResults) > 0 {
				out[n-1].ToolResults = append(out[n-1].ToolResults, result)
				continue
			}
			out = append(out, llm.NewToolResultMessage(result))
		default:
			out = append(out, llm.NewUserMessage(m.Content))
		}
	}
	return out
}

// FromToolCalls converts provider tool calls to state tool calls.
func FromToolCalls(calls []llm.ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		out[i] = ToolCall{ID: c.ID, Name: c.Name, Args: c.Parameters}
	}
	return out
}
