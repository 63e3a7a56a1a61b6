package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultChatTimeout bounds a single chat call; AI processing can take minutes.
const DefaultChatTimeout = 120 * time.Second

// Client talks to the bt-servant-engine HTTP API.
type Client struct {
	baseURL     string
	apiKey      string
	clientID    string
	chatTimeout time.Duration
	httpClient  *http.Client
}

func NewClient(baseURL, apiKey, clientID string, chatTimeout time.Duration) *Client {
	if chatTimeout <= 0 {
		chatTimeout = DefaultChatTimeout
	}
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		clientID:    clientID,
		chatTimeout: chatTimeout,
		httpClient:  &http.Client{},
	}
}

// ClientID returns the configured client identifier sent with every chat request.
func (c *Client) ClientID() string { return c.clientID }

// Chat sends a chat message to the engine and waits for the full structured
// response. The call is bounded by the configured chat timeout regardless of
// the caller's context.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.ClientID = c.clientID

	ctx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	c.setAuthHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine chat call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("engine chat call: status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return &chatResp, nil
}

// ChatHistory fetches past conversation turns for a user. A 404 from the
// engine means a new user with no history and yields an empty response.
func (c *Client) ChatHistory(ctx context.Context, userID string, limit, offset int) (*HistoryResponse, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	endpoint := fmt.Sprintf("%s/api/v1/users/%s/history?%s", c.baseURL, url.PathEscape(userID), params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	c.setAuthHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine history call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &HistoryResponse{UserID: userID, Entries: []HistoryEntry{}, Limit: limit, Offset: offset}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine history call: status %d", resp.StatusCode)
	}

	var history HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}
	return &history, nil
}

// Preferences fetches a user's stored preferences. A 404 yields empty
// defaults for new users.
func (c *Client) Preferences(ctx context.Context, userID string) (*UserPreferences, error) {
	endpoint := fmt.Sprintf("%s/api/v1/users/%s/preferences", c.baseURL, url.PathEscape(userID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build preferences request: %w", err)
	}
	c.setAuthHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine preferences call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &UserPreferences{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine preferences call: status %d", resp.StatusCode)
	}

	var prefs UserPreferences
	if err := json.NewDecoder(resp.Body).Decode(&prefs); err != nil {
		return nil, fmt.Errorf("decode preferences response: %w", err)
	}
	return &prefs, nil
}

// UpdatePreferences stores a user's preferences and returns the saved state.
func (c *Client) UpdatePreferences(ctx context.Context, userID string, prefs UserPreferences) (*UserPreferences, error) {
	payload, err := json.Marshal(prefs)
	if err != nil {
		return nil, fmt.Errorf("marshal preferences: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/users/%s/preferences", c.baseURL, url.PathEscape(userID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build preferences request: %w", err)
	}
	c.setAuthHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine preferences call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine preferences call: status %d", resp.StatusCode)
	}

	var saved UserPreferences
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return nil, fmt.Errorf("decode preferences response: %w", err)
	}
	return &saved, nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}
