// Package backend is the voice assistant's client for the Nova chat server.
// It logs in once, lazily creates a single conversation for the voice
// session, and streams assistant replies over server-sent events.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ConversationTitle is the title of the conversation all voice exchanges are
// appended to.
const ConversationTitle = "Voice Session"

// SystemPrompt is the fixed persona for the voice session conversation.
const SystemPrompt = "I am Nova Bot, your helpful AI assistant."

// FallbackReply is spoken when the server produced no tokens for a request.
const FallbackReply = "I did not get a response."

// Sampling parameters for every voice turn.
const (
	turnTemperature = 0.7
	turnMaxTokens   = 700
)

const defaultTimeout = 120 * time.Second

// Client talks to the Nova chat server. Safe for concurrent use.
type Client struct {
	baseURL  string
	email    string
	password string
	model    string
	http     *http.Client

	mu             sync.Mutex
	accessToken    string
	refreshToken   string
	conversationID int64
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithModel sets the model recorded on the voice session conversation when
// it is first created.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New creates a [Client] for the server at baseURL. Call [Client.Login]
// before any other method.
func New(baseURL, email, password string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		password: password,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Login authenticates with the configured credentials and stores the issued
// tokens for later requests.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return fmt.Errorf("backend: encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend: login: server returned %s", resp.Status)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("backend: decode login response: %w", err)
	}
	if lr.AccessToken == "" {
		return fmt.Errorf("backend: login response contained no access token")
	}

	c.mu.Lock()
	c.accessToken = lr.AccessToken
	c.refreshToken = lr.RefreshToken
	c.mu.Unlock()
	return nil
}

type conversation struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// EnsureConversation returns the ID of the voice session conversation,
// creating it on first use.
func (c *Client) EnsureConversation(ctx context.Context) (int64, error) {
	c.mu.Lock()
	if c.conversationID != 0 {
		id := c.conversationID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	payload := map[string]string{
		"title":         ConversationTitle,
		"system_prompt": SystemPrompt,
	}
	if c.model != "" {
		payload["model"] = c.model
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("backend: encode conversation: %w", err)
	}

	resp, err := c.doAuth(ctx, http.MethodPost, "/api/chat/new", body, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("backend: create conversation: server returned %s", resp.Status)
	}

	var conv conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return 0, fmt.Errorf("backend: decode conversation: %w", err)
	}
	if conv.ID == 0 {
		return 0, fmt.Errorf("backend: server returned conversation without id")
	}

	c.mu.Lock()
	c.conversationID = conv.ID
	c.mu.Unlock()
	return conv.ID, nil
}

// streamEvent is one server-sent event from the chat stream endpoint.
type streamEvent struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// Ask sends message to the voice session conversation and returns the full
// assistant reply. model selects the server-side model; empty means the
// server default. onToken, when non-nil, is invoked for every streamed token
// as it arrives.
func (c *Client) Ask(ctx context.Context, message, model string, onToken func(string)) (string, error) {
	convID, err := c.EnsureConversation(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"conversation_id": convID,
		"message":         message,
		"temperature":     turnTemperature,
		"max_tokens":      turnMaxTokens,
	}
	if model != "" {
		payload["model"] = model
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("backend: encode message: %w", err)
	}

	resp, err := c.doAuth(ctx, http.MethodPost, "/api/chat/send/stream", body, "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("backend: chat stream: server returned %s", resp.Status)
	}

	reply, err := readStream(resp.Body, onToken)
	if err != nil {
		return "", err
	}
	if reply = strings.TrimSpace(reply); reply == "" {
		return FallbackReply, nil
	}
	return reply, nil
}

// readStream consumes SSE lines until a terminal event or EOF, concatenating
// token contents.
func readStream(r io.Reader, onToken func(string)) (string, error) {
	var reply strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		raw := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if raw == "" {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return "", fmt.Errorf("backend: decode stream event: %w", err)
		}
		switch ev.Type {
		case "token":
			reply.WriteString(ev.Value)
			if onToken != nil {
				onToken(ev.Value)
			}
		case "error":
			return "", fmt.Errorf("backend: server error: %s", ev.Value)
		case "done":
			return reply.String(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("backend: read stream: %w", err)
	}
	// Stream ended without a done event: use what arrived.
	return reply.String(), nil
}

// doAuth performs an authenticated request, retrying once after a fresh
// login when the access token has expired.
func (c *Client) doAuth(ctx context.Context, method, path string, body []byte, accept string) (*http.Response, error) {
	resp, err := c.send(ctx, method, path, body, accept)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.Login(ctx); err != nil {
		return nil, fmt.Errorf("backend: re-login after expired token: %w", err)
	}
	return c.send(ctx, method, path, body, accept)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, accept string) (*http.Response, error) {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	if token == "" {
		return nil, fmt.Errorf("backend: not logged in")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	return resp, nil
}
