package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client talks to a remote agents service rooted at a project endpoint.
// Requests are JSON, authenticated with bearer tokens from a TokenSource,
// and retried with exponential backoff on transport errors and 429/5xx.
type Client struct {
	endpoint   string
	apiVersion string
	tokens     TokenSource
	httpc      *http.Client
	retries    int
	backoff    time.Duration
	logger     *log.Logger
}

// ClientOptions configures a Client. Zero values get sane defaults.
type ClientOptions struct {
	Endpoint   string
	APIVersion string
	Timeout    time.Duration
	Retries    int
	Backoff    time.Duration
}

// NewClient creates a client for the given project endpoint.
func NewClient(opts ClientOptions, tokens TokenSource) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff == 0 {
		opts.Backoff = 300 * time.Millisecond
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "2025-05-01"
	}
	return &Client{
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		apiVersion: opts.APIVersion,
		tokens:     tokens,
		httpc:      &http.Client{Timeout: opts.Timeout},
		retries:    opts.Retries,
		backoff:    opts.Backoff,
		logger:     log.New(log.Writer(), "[AGENTS] ", log.LstdFlags),
	}
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return e.Status + ": " + e.Body
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	u := c.endpoint + path
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("api-version", c.apiVersion)
	u += "?" + q.Encode()

	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
		if err != nil {
			return err
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("x-ms-client-request-id", uuid.NewString())
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
		} else {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if out == nil {
					resp.Body.Close()
					return nil
				}
				err := json.NewDecoder(resp.Body).Decode(out)
				resp.Body.Close()
				if err != nil {
					return fmt.Errorf("failed to decode response: %w", err)
				}
				return nil
			}
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(b)}
			if !retryable(resp.StatusCode) {
				return lastErr
			}
		}

		if attempt < tries-1 {
			c.logger.Printf("%s %s failed (attempt %d/%d): %v", method, path, attempt+1, tries, lastErr)
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// CreateAgentParams is the body of an agent create call.
type CreateAgentParams struct {
	Model        string           `json:"model"`
	Name         string           `json:"name,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// CreateAgent provisions a remote agent.
func (c *Client) CreateAgent(ctx context.Context, p CreateAgentParams) (Agent, error) {
	var agent Agent
	if err := c.doJSON(ctx, http.MethodPost, "/assistants", nil, p, &agent); err != nil {
		return Agent{}, fmt.Errorf("failed to create agent: %w", err)
	}
	return agent, nil
}

// DeleteAgent removes a remote agent.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/assistants/"+agentID, nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete agent %s: %w", agentID, err)
	}
	return nil
}

// CreateThread opens a new conversation thread.
func (c *Client) CreateThread(ctx context.Context) (Thread, error) {
	var thread Thread
	if err := c.doJSON(ctx, http.MethodPost, "/threads", nil, map[string]any{}, &thread); err != nil {
		return Thread{}, fmt.Errorf("failed to create thread: %w", err)
	}
	return thread, nil
}

// DeleteThread removes a thread and its messages.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/threads/"+threadID, nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", threadID, err)
	}
	return nil
}

type createMessageParams struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CreateMessage appends a message to a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, content string) (ThreadMessage, error) {
	var msg ThreadMessage
	p := createMessageParams{Role: role, Content: content}
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages", nil, p, &msg); err != nil {
		return ThreadMessage{}, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

// CreateRunParams is the body of a run create call. Tools, when set, force a
// tool override for this run only.
type CreateRunParams struct {
	AgentID string           `json:"assistant_id"`
	Tools   []ToolDefinition `json:"tools,omitempty"`
}

// CreateRun starts an agent execution over a thread.
func (c *Client) CreateRun(ctx context.Context, threadID string, p CreateRunParams) (Run, error) {
	var run Run
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs", nil, p, &run); err != nil {
		return Run{}, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun re-reads a run's current state.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var run Run
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, nil, &run); err != nil {
		return Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

type listMessagesResponse struct {
	Data    []ThreadMessage `json:"data"`
	HasMore bool            `json:"has_more"`
}

// LastMessageByRole returns the newest message with the given role, or nil
// when the thread has none.
func (c *Client) LastMessageByRole(ctx context.Context, threadID, role string) (*ThreadMessage, error) {
	q := url.Values{}
	q.Set("order", "desc")
	q.Set("limit", "20")
	var list listMessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/messages", q, nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	for i := range list.Data {
		if list.Data[i].Role == role {
			return &list.Data[i], nil
		}
	}
	return nil, nil
}

// GetMessage re-reads a full message body by id.
func (c *Client) GetMessage(ctx context.Context, threadID, messageID string) (*ThreadMessage, error) {
	var msg ThreadMessage
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/messages/"+messageID, nil, nil, &msg); err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return &msg, nil
}

// GetConnection resolves a project connection (e.g. Bing grounding) by name.
func (c *Client) GetConnection(ctx context.Context, name string) (Connection, error) {
	var conn Connection
	if err := c.doJSON(ctx, http.MethodGet, "/connections/"+name, nil, nil, &conn); err != nil {
		return Connection{}, fmt.Errorf("failed to get connection %q: %w", name, err)
	}
	return conn, nil
}
