package engine

// Types matching the bt-servant-engine API contracts.

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeAudio MessageType = "audio"
)

// ChatRequest is the outbound payload for POST /api/v1/chat.
type ChatRequest struct {
	ClientID                string      `json:"client_id"`
	UserID                  string      `json:"user_id"`
	Message                 string      `json:"message"`
	MessageType             MessageType `json:"message_type"`
	AudioBase64             string      `json:"audio_base64,omitempty"`
	AudioFormat             string      `json:"audio_format,omitempty"` // "webm", "ogg", "mp3"
	ProgressCallbackURL     string      `json:"progress_callback_url,omitempty"`
	ProgressThrottleSeconds int         `json:"progress_throttle_seconds,omitempty"`
}

// ChatResponse is the engine's structured reply to a chat request.
type ChatResponse struct {
	Responses        []string `json:"responses"`
	ResponseLanguage string   `json:"response_language"`
	VoiceAudioBase64 *string  `json:"voice_audio_base64"`
	IntentProcessed  string   `json:"intent_processed"`
	HasQueuedIntents bool     `json:"has_queued_intents"`
}

// ProgressCallback is the payload the engine POSTs to the progress webhook
// while a chat request is still being processed.
type ProgressCallback struct {
	UserID     string  `json:"user_id"`
	MessageKey string  `json:"message_key"`
	Text       string  `json:"text"`
	Timestamp  float64 `json:"timestamp"`
}

type UserPreferences struct {
	ResponseLanguage string `json:"response_language,omitempty"`
	AgenticStrength  string `json:"agentic_strength,omitempty"` // "normal", "low", "very_low"
	DevAgenticMCP    *bool  `json:"dev_agentic_mcp,omitempty"`
}

type HistoryEntry struct {
	UserMessage       string  `json:"user_message"`
	AssistantResponse string  `json:"assistant_response"`
	CreatedAt         *string `json:"created_at"`
}

type HistoryResponse struct {
	UserID     string         `json:"user_id"`
	Entries    []HistoryEntry `json:"entries"`
	TotalCount int            `json:"total_count"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}
