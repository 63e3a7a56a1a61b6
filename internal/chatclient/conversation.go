package chatclient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/unfoldingWord/bt-servant-web-client/internal/relay"
)

// streamFailureMessage is shown when the stream breaks or ends without a
// terminal event.
const streamFailureMessage = "Sorry, I encountered an error. Please try again."

// defaultFinalizeDelay bounds how long a pending completion waits for the
// animation driver before force-finalizing.
const defaultFinalizeDelay = 500 * time.Millisecond

// Role distinguishes who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one finalized conversation turn.
type Message struct {
	ID          string
	Role        Role
	Text        string
	AudioBase64 string
	CreatedAt   time.Time
}

// Snapshot is the UI-visible view of a conversation at one instant.
type Snapshot struct {
	Messages          []Message
	StreamingText     string
	Status            string
	Busy              bool
	PendingCompletion bool
}

// Conversation reassembles chat stream events into an ordered message list.
// Messages are append-only; the only in-place change is the handshake-gated
// transition of streamed partial text into a finalized assistant message.
// All methods are safe for concurrent use.
type Conversation struct {
	client *Client

	mu            sync.Mutex
	messages      []Message
	partial       string
	status        string
	busy          bool
	pending       *Message
	pendingTimer  *time.Timer
	historyLoaded bool
	nextID        int
	finalizeDelay time.Duration
}

// NewConversation returns an empty conversation backed by the given client.
func NewConversation(client *Client) *Conversation {
	return &Conversation{
		client:        client,
		finalizeDelay: defaultFinalizeDelay,
	}
}

// Snapshot returns a copy of the current UI-visible state.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{
		Messages:          msgs,
		StreamingText:     c.partial,
		Status:            c.status,
		Busy:              c.busy,
		PendingCompletion: c.pending != nil,
	}
}

// LoadHistory fetches prior turns once and merges them as finalized messages,
// oldest first, ahead of anything added later. Subsequent calls are no-ops.
func (c *Conversation) LoadHistory(ctx context.Context) error {
	c.mu.Lock()
	if c.historyLoaded {
		c.mu.Unlock()
		return nil
	}
	c.historyLoaded = true
	c.mu.Unlock()

	history, err := c.client.History(ctx, 50, 0)
	if err != nil {
		c.mu.Lock()
		c.historyLoaded = false
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	merged := make([]Message, 0, len(history.Entries)*2+len(c.messages))
	for _, entry := range history.Entries {
		created := time.Now()
		if entry.CreatedAt != nil {
			if t, err := time.Parse(time.RFC3339, *entry.CreatedAt); err == nil {
				created = t
			}
		}
		merged = append(merged,
			Message{ID: c.newIDLocked(), Role: RoleUser, Text: entry.UserMessage, CreatedAt: created},
			Message{ID: c.newIDLocked(), Role: RoleAssistant, Text: entry.AssistantResponse, CreatedAt: created},
		)
	}
	c.messages = append(merged, c.messages...)
	return nil
}

// Send submits a message and consumes its event stream to completion. It
// blocks until the server closes the stream; run it on its own goroutine and
// observe progress through Snapshot. A completion still pending from the
// previous turn is force-finalized before the new user message is appended.
func (c *Conversation) Send(ctx context.Context, chatReq ChatRequest) error {
	c.begin(chatReq)

	sawTerminal := false
	err := c.client.StreamEvents(ctx, chatReq, func(ev relay.StreamEvent) {
		if ev.Terminal() {
			sawTerminal = true
		}
		c.handleEvent(ev)
	})

	if err != nil || !sawTerminal {
		if err != nil {
			slog.Error("chat stream failed", "error", err)
		}
		c.failStream()
	}
	return err
}

// begin performs pre-send bookkeeping: pre-empt any pending completion, then
// append the user message and enter the busy state.
func (c *Conversation) begin(chatReq ChatRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forceFinalizeLocked()

	text := chatReq.Message
	if text == "" && chatReq.AudioBase64 != "" {
		text = "[voice message]"
	}
	c.messages = append(c.messages, Message{
		ID:        c.newIDLocked(),
		Role:      RoleUser,
		Text:      text,
		CreatedAt: time.Now(),
	})
	c.partial = ""
	c.status = ""
	c.busy = true
}

// handleEvent applies one stream event to conversation state.
func (c *Conversation) handleEvent(ev relay.StreamEvent) {
	switch ev.Type {
	case relay.EventStatus:
		c.mu.Lock()
		c.status = ev.Message
		c.mu.Unlock()
	case relay.EventProgress:
		c.mu.Lock()
		c.partial += ev.Text
		c.status = ""
		c.mu.Unlock()
	case relay.EventComplete:
		text := ""
		audio := ""
		if ev.Response != nil {
			text = strings.Join(ev.Response.Responses, "\n\n")
			if ev.Response.VoiceAudioBase64 != nil {
				audio = *ev.Response.VoiceAudioBase64
			}
		}
		c.handleComplete(text, audio)
	case relay.EventError:
		msg := ev.Error
		if msg == "" {
			msg = streamFailureMessage
		}
		c.mu.Lock()
		c.finalizeLocked(Message{Role: RoleAssistant, Text: msg})
		c.mu.Unlock()
	}
}

// failStream records a generic error turn when the stream breaks or ends
// without a terminal event. A no-op if a terminal event already resolved
// the turn. A completion held for the animation driver counts as resolved:
// the full answer arrived, so it is committed rather than replaced by the
// error message.
func (c *Conversation) failStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.forceFinalizeLocked()
		return
	}
	if !c.busy {
		return
	}
	c.finalizeLocked(Message{Role: RoleAssistant, Text: streamFailureMessage})
}

// finalizeLocked appends msg and clears all in-flight state. Callers hold mu.
func (c *Conversation) finalizeLocked(msg Message) {
	if msg.ID == "" {
		msg.ID = c.newIDLocked()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	c.messages = append(c.messages, msg)
	c.partial = ""
	c.status = ""
	c.busy = false
	c.pending = nil
	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
		c.pendingTimer = nil
	}
}

func (c *Conversation) newIDLocked() string {
	c.nextID++
	return fmt.Sprintf("msg_%d", c.nextID)
}
