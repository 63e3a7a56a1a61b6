// Package chatclient consumes the web client's chat API from Go: it submits
// chat requests over the SSE streaming endpoint, decodes events off the wire,
// and maintains conversation state for a frontend to render.
package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/unfoldingWord/bt-servant-web-client/internal/engine"
	"github.com/unfoldingWord/bt-servant-web-client/internal/relay"
)

const ssePrefix = "data: "

// Client issues authenticated calls against the web client's API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient returns a client for the API at baseURL authenticating with the
// given session token. The HTTP client carries no timeout: a streaming chat
// request legitimately stays open for minutes, bounded server-side.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// ChatRequest is a chat submission.
type ChatRequest struct {
	Message     string `json:"message"`
	MessageType string `json:"message_type,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
}

// StreamEvents POSTs a chat request to the streaming endpoint and invokes fn
// for every decoded event, in arrival order, until the server closes the
// stream. Records are newline-delimited; partial records spanning read chunks
// are buffered until terminated, and malformed records are dropped without
// aborting the stream.
func (c *Client) StreamEvents(ctx context.Context, chatReq ChatRequest, fn func(relay.StreamEvent)) error {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("open chat stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat stream rejected: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		var ev relay.StreamEvent
		if err := json.Unmarshal([]byte(line[len(ssePrefix):]), &ev); err != nil {
			slog.Debug("dropping malformed stream record", "error", err)
			continue
		}
		fn(ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read chat stream: %w", err)
	}
	return nil
}

// History fetches prior conversation turns for the authenticated user.
func (c *Client) History(ctx context.Context, limit, offset int) (*engine.HistoryResponse, error) {
	url := fmt.Sprintf("%s/api/chat/history?limit=%d&offset=%d", c.baseURL, limit, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create history request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request failed: status %d", resp.StatusCode)
	}

	var history engine.HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}
	return &history, nil
}
