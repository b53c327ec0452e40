package persistence

import (
	"errors"
	"time"
	"unicode/utf8"

	"aura/pkg/state"
)

var (
	// ErrThreadNotFound is returned when a requested thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrUserNotFound is returned when no user has the requested email.
	ErrUserNotFound = errors.New("user not found")
)

// DefaultThreadTitle is used when a thread is created without a title.
const DefaultThreadTitle = "New Chat"

// titleLimit is the number of characters of the first message kept as a thread title.
const titleLimit = 50

// Thread is one persisted conversation.
type Thread struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages,omitempty"`
}

// Message is one persisted conversation turn.
//
//nolint:govet // struct alignment optimization not critical for this type.
type Message struct {
	ID         int64            `json:"id"`
	ThreadID   string           `json:"thread_id"`
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []state.ToolCall `json:"tool_calls,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// AuditRecord is one persisted audit entry of a run on a thread.
//
//nolint:govet // struct alignment optimization not critical for this type.
type AuditRecord struct {
	ID        int64          `json:"id"`
	ThreadID  string         `json:"thread_id"`
	RunID     string         `json:"run_id"`
	Role      string         `json:"role"`
	Action    string         `json:"action"`
	Status    string         `json:"status"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// User is an account with optional Google OAuth tokens.
type User struct {
	GoogleTokenExpiry  *time.Time `json:"google_token_expiry,omitempty"`
	Email              string     `json:"email"`
	FullName           string     `json:"full_name,omitempty"`
	GoogleAccessToken  string     `json:"-"`
	GoogleRefreshToken string     `json:"-"`
	ID                 int64      `json:"id"`
}

// ThreadTitle derives a thread title from its first message.
func ThreadTitle(firstMessage string) string {
	if firstMessage == "" {
		return DefaultThreadTitle
	}
	if utf8.RuneCountInString(firstMessage) <= titleLimit {
		return firstMessage
	}
	runes := []rune(firstMessage)
	return string(runes[:titleLimit]) + "..."
}

// ToState converts persisted messages to conversation history.
func ToState(msgs []*Message) []state.Message {
	out := make([]state.Message, len(msgs))
	for i, m := range msgs {
		out[i] = state.Message{
			Role:       state.Role(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
			ToolCalls:  m.ToolCalls,
		}
	}
	return out
}
