package relay

import (
	"encoding/json"
	"fmt"

	"github.com/unfoldingWord/bt-servant-web-client/internal/engine"
)

// Event kinds carried on a chat stream. For any request, zero or more
// status/progress events precede exactly one terminal complete or error
// event; nothing is delivered after the terminal event.
const (
	EventStatus   = "status"
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// StreamEvent is one server-to-client event on a chat stream, discriminated
// by Type. Only the fields belonging to the event kind are populated.
type StreamEvent struct {
	Type       string               `json:"type"`
	Message    string               `json:"message,omitempty"`    // status
	Text       string               `json:"text,omitempty"`       // progress
	MessageKey string               `json:"messageKey,omitempty"` // progress
	Response   *engine.ChatResponse `json:"response,omitempty"`   // complete
	Error      string               `json:"error,omitempty"`      // error
}

func StatusEvent(message string) StreamEvent {
	return StreamEvent{Type: EventStatus, Message: message}
}

func ProgressEvent(text, messageKey string) StreamEvent {
	return StreamEvent{Type: EventProgress, Text: text, MessageKey: messageKey}
}

func CompleteEvent(resp *engine.ChatResponse) StreamEvent {
	return StreamEvent{Type: EventComplete, Response: resp}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Error: message}
}

// Terminal reports whether the event ends its stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// EncodeSSE frames an event as a single `data: <json>` SSE record.
func EncodeSSE(ev StreamEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal stream event: %w", err)
	}
	return []byte(fmt.Sprintf("data: %s\n\n", data)), nil
}
