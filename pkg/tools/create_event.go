package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ToolCreateEvent is the constant name for the calendar event tool.
const ToolCreateEvent = "create_event"

// Event is a calendar event to be created.
type Event struct {
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
}

// CreatedEvent identifies an event after creation.
type CreatedEvent struct {
	ID       string
	HTMLLink string
}

// EventCreator creates events on a user's primary calendar.
type EventCreator interface {
	CreateEvent(ctx context.Context, userEmail string, ev Event) (CreatedEvent, error)
}

// CreateEventTool schedules an event on the calendar of one user.
type CreateEventTool struct {
	creator   EventCreator
	userEmail string
}

// NewCreateEventTool binds the tool to a calendar backend and the requesting user.
func NewCreateEventTool(creator EventCreator, userEmail string) *CreateEventTool {
	return &CreateEventTool{creator: creator, userEmail: userEmail}
}

// Name returns the tool name.
func (t *CreateEventTool) Name() string {
	return ToolCreateEvent
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *CreateEventTool) PromptDocumentation() string {
	return `- **create_event** - Create an event on the user's primary calendar
  - Parameters: summary, start_time, end_time (ISO 8601, REQUIRED), description (optional)`
}

// Definition returns the tool definition for the model.
func (t *CreateEventTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolCreateEvent,
		Description: "Creates a new event in the user's primary Google Calendar.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"summary": {
					Type:        "string",
					Description: "Title of the event",
				},
				"start_time": {
					Type:        "string",
					Description: "ISO 8601 start time, e.g. 2024-05-01T15:00:00",
				},
				"end_time": {
					Type:        "string",
					Description: "ISO 8601 end time, e.g. 2024-05-01T16:00:00",
				},
				"description": {
					Type:        "string",
					Description: "Optional details for the event",
				},
			},
			Required: []string{"summary", "start_time", "end_time"},
		},
	}
}

// Exec creates the event. Calendar failures are reported in the result text.
func (t *CreateEventTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	summary, _ := args["summary"].(string)
	if strings.TrimSpace(summary) == "" {
		return nil, fmt.Errorf("summary is required")
	}
	startRaw, _ := args["start_time"].(string)
	endRaw, _ := args["end_time"].(string)
	description, _ := args["description"].(string)

	start, err := ParseTime(startRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := ParseTime(endRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid end_time: %w", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end_time must be after start_time")
	}

	created, err := t.creator.CreateEvent(ctx, t.userEmail, Event{
		Summary:     summary,
		Description: description,
		Start:       start,
		End:         end,
	})
	if err != nil {
		return &ExecResult{Content: fmt.Sprintf("Failed to create event: %v", err)}, nil
	}
	return &ExecResult{Content: "Event created successfully! Link: " + created.HTMLLink}, nil
}

// timeLayouts are the ISO 8601 forms accepted from the model, most specific first.
//
//nolint:gochecknoglobals // read-only table
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime parses an ISO 8601 timestamp. Values without an offset are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
