// Package state defines the conversation state passed between orchestration steps and
// the typed patches steps return.
package state

import (
	"maps"
	"slices"
	"time"
)

// Role is the author class of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Audit statuses.
const (
	StatusSuccess  = "Success"
	StatusFailed   = "Failed"
	StatusApproved = "Approved"
	StatusVetoed   = "Vetoed"
)

// ToolCall is one action requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one turn of the conversation. Messages are never modified once appended.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// UserMessage returns a message from the human user.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns a reply authored by name.
func AssistantMessage(name, content string) Message {
	return Message{Role: RoleAssistant, Name: name, Content: content}
}

// ToolResultMessage returns the result of tool call id.
func ToolResultMessage(id, toolName, content string) Message {
	return Message{Role: RoleTool, ToolCallID: id, Name: toolName, Content: content}
}

// AuditEntry is write-only telemetry about one step. Workers never read it for control decisions.
type AuditEntry struct {
	Role      string         `json:"role"`
	Action    string         `json:"action"`
	Status    string         `json:"status"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewAuditEntry returns an entry stamped with the current UTC time.
func NewAuditEntry(role, action, status string, detail map[string]any) AuditEntry {
	return AuditEntry{Role: role, Action: action, Status: status, Detail: detail, Timestamp: time.Now().UTC()}
}

// State is the unit passed between orchestration steps.
//
// Field merge rules, applied by Apply:
//   - Messages: append only.
//   - AuditLog: append only.
//   - Next: replace; set only by the supervisor.
//   - TaskContext, ProposedPlan: per-key merge, patch keys overwrite.
//   - UserContext: never patched.
type State struct {
	Messages     []Message      `json:"messages"`
	Next         Route          `json:"next"`
	UserContext  map[string]any `json:"user_context"`
	TaskContext  map[string]any `json:"current_task_context"`
	ProposedPlan map[string]any `json:"proposed_plan"`
	AuditLog     []AuditEntry   `json:"audit_log"`

	initial int
}

// New builds the state for one run from prior history, the new user message and the
// resolved user context. Inputs are copied. An empty userMsg appends nothing.
func New(history []Message, userMsg string, userContext map[string]any) *State {
	msgs := slices.Clone(history)
	s := &State{
		UserContext:  maps.Clone(userContext),
		TaskContext:  map[string]any{},
		ProposedPlan: map[string]any{},
		initial:      len(msgs),
	}
	if s.UserContext == nil {
		s.UserContext = map[string]any{}
	}
	if userMsg != "" {
		msgs = append(msgs, UserMessage(userMsg))
	}
	s.Messages = msgs
	return s
}

// Apply merges p into s field by field.
func (s *State) Apply(p Patch) { //nolint:gocritic // Patch passed by value; it is not retained
	s.Messages = AppendMessages(s.Messages, p.Messages)
	s.AuditLog = AppendAudit(s.AuditLog, p.AuditLog)
	s.Next = ReplaceNext(s.Next, p.Next)
	s.TaskContext = MergeContext(s.TaskContext, p.TaskContext)
	s.ProposedPlan = MergeContext(s.ProposedPlan, p.ProposedPlan)
}

// NewMessages returns the messages appended since New, the user message included.
func (s *State) NewMessages() []Message {
	return slices.Clone(s.Messages[s.initial:])
}

// LastMessage returns the most recent message.
func (s *State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastUserMessage returns the content of the most recent user message.
func (s *State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}
