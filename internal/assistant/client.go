// Package assistant talks to the vendor-hosted assistant service:
// it creates a thread per turn, runs the configured assistant on it
// and polls the run until a reply is available.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Run states reported by the vendor API.
const (
	RunQueued         = "queued"
	RunInProgress     = "in_progress"
	RunCompleted      = "completed"
	RunFailed         = "failed"
	RunRequiresAction = "requires_action"
)

// Client is a thin REST client for the assistant threads/runs API.
// It is constructed once at startup and passed in; nothing in this
// package holds ambient global state.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an assistant API client.  baseURL defaults to
// the vendor endpoint when empty.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Thread is a vendor-hosted conversation context, distinct from the
// application's own Conversation entity.
type Thread struct {
	ID string `json:"id"`
}

// Run is a vendor-hosted asynchronous job executing the assistant
// against a thread.
type Run struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// RunError carries the vendor-supplied failure detail of a run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ContentBlock is one typed chunk of a thread message; only "text"
// blocks carry reply content.
type ContentBlock struct {
	Type string `json:"type"`
	Text *struct {
		Value string `json:"value"`
	} `json:"text,omitempty"`
}

// ThreadMessage is a message stored on a vendor thread.
type ThreadMessage struct {
	ID      string         `json:"id"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

type messageList struct {
	Data []ThreadMessage `json:"data"` // newest first
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// do issues a JSON request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var ae apiError
		if err := json.Unmarshal(respBody, &ae); err == nil && ae.Error.Message != "" {
			return fmt.Errorf("assistant API error [%d]: %s (type: %s)", resp.StatusCode, ae.Error.Message, ae.Error.Type)
		}
		return fmt.Errorf("assistant API error [%d]: %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// CreateThread creates a fresh vendor thread.
func (c *Client) CreateThread(ctx context.Context) (Thread, error) {
	var t Thread
	err := c.do(ctx, http.MethodPost, "/v1/threads", map[string]interface{}{}, &t)
	return t, err
}

// AddMessage appends a message with the given role to a thread.
func (c *Client) AddMessage(ctx context.Context, threadID, role, content string) error {
	in := map[string]string{"role": role, "content": content}
	return c.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/messages", in, nil)
}

// StartRun starts the assistant on a thread and returns the run.
func (c *Client) StartRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	var r Run
	in := map[string]string{"assistant_id": assistantID}
	err := c.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/runs", in, &r)
	return r, err
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var r Run
	err := c.do(ctx, http.MethodGet, "/v1/threads/"+threadID+"/runs/"+runID, nil, &r)
	return r, err
}

// CancelRun asks the vendor to cancel a run.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	return c.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/runs/"+runID+"/cancel", map[string]interface{}{}, nil)
}

// ListMessages returns the messages of a thread, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	var l messageList
	err := c.do(ctx, http.MethodGet, "/v1/threads/"+threadID+"/messages", nil, &l)
	return l.Data, err
}
