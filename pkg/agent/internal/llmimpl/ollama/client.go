// Package ollama provides Ollama client implementation for LLM interface.
// Ollama is a local LLM runtime that allows running open-source models.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"aura/pkg/agent/llm"
	"aura/pkg/agent/llmerrors"
	"aura/pkg/tools"
)

// DefaultHost is used when the configured host URL cannot be parsed.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.LLMClient interface.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewOllamaClientWithModel creates a new Ollama client with specific model.
// hostURL should be the Ollama server URL (e.g., "http://localhost:11434").
func NewOllamaClientWithModel(hostURL, model string) llm.LLMClient {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || parsedURL.Host == "" {
		parsedURL, _ = url.Parse(DefaultHost)
		hostURL = DefaultHost
	}
	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		hostURL: hostURL,
	}
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessagesToOllama(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
	if len(in.Tools) > 0 && in.ToolChoice != llm.ToolChoiceNone {
		ollamaTools, err := convertToolsToOllama(in.Tools)
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("tool conversion error: %v", err))
		}
		req.Tools = ollamaTools
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	result := llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: getStopReason(&response),
	}
	if len(response.Message.ToolCalls) > 0 {
		calls, err := convertToolCallsFromOllama(response.Message.ToolCalls)
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "failed to decode tool calls")
		}
		result.ToolCalls = calls
	}
	return result, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// convertMessagesToOllama converts our message format to Ollama's Message format.
// Tool turns are sent as text.
func convertMessagesToOllama(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}
	flat := llm.FlattenToolTurns(messages)
	result := make([]api.Message, 0, len(flat))
	for i := range flat {
		result = append(result, api.Message{
			Role:    string(flat[i].Role),
			Content: flat[i].Content,
		})
	}
	return result, nil
}

// toolSchema is the JSON shape Ollama expects for a function tool.
type toolSchema struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                `json:"name"`
		Description string                `json:"description"`
		Parameters  tools.InputSchema     `json:"parameters"`
	} `json:"function"`
}

// convertToolsToOllama converts our tool definitions through their JSON form, which
// keeps the conversion independent of the api package's Go property types.
func convertToolsToOllama(toolDefs []tools.ToolDefinition) (api.Tools, error) {
	schemas := make([]toolSchema, len(toolDefs))
	for i := range toolDefs {
		schemas[i].Type = "function"
		schemas[i].Function.Name = toolDefs[i].Name
		schemas[i].Function.Description = toolDefs[i].Description
		schemas[i].Function.Parameters = toolDefs[i].InputSchema
		if schemas[i].Function.Parameters.Type == "" {
			schemas[i].Function.Parameters.Type = "object"
		}
	}
	data, err := json.Marshal(schemas)
	if err != nil {
		return nil, err
	}
	var out api.Tools
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type wireToolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// convertToolCallsFromOllama extracts tool calls from Ollama response.
func convertToolCallsFromOllama(calls []api.ToolCall) ([]llm.ToolCall, error) {
	data, err := json.Marshal(calls)
	if err != nil {
		return nil, err
	}
	var wire []wireToolCall
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	return fromWire(wire), nil
}

func fromWire(wire []wireToolCall) []llm.ToolCall {
	result := make([]llm.ToolCall, len(wire))
	for i := range wire {
		id := wire[i].ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		result[i] = llm.ToolCall{
			ID:         id,
			Name:       wire[i].Function.Name,
			Parameters: wire[i].Function.Arguments,
		}
	}
	return result
}

// getStopReason converts Ollama's done_reason to our stop reason format.
func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError converts Ollama errors to our error types.
func classifyError(err error) error {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Ollama server not reachable")
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeNotFound, err, "Ollama model not found")
	default:
		return llmerrors.FromError(err, "Ollama API error")
	}
}
