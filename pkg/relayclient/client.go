// Package relayclient talks to the story relay: it sends turn requests and
// re-frames the streamed reply into text fragments, and wraps the scenario
// and health endpoints.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jwebster45206/story-relay/pkg/scenario"
)

const (
	ChatPath      = "/api/chat"
	ScenariosPath = "/v1/scenarios"
	HealthPath    = "/health"

	EventStreamType = "text/event-stream"
)

// ErrUpstreamInterrupted means the relay started a response but it ended
// before the completion marker.
var ErrUpstreamInterrupted = errors.New("upstream interrupted")

// ErrorResponse is the relay's JSON error body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string // "error" field of the body, if it was JSON
	Detail     string
	Body       string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Detail != "" {
		return fmt.Sprintf("relay returned %d: %s: %s", e.StatusCode, msg, e.Detail)
	}
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, msg)
}

// ResponseText is the body exactly as the relay sent it.
func (e *StatusError) ResponseText() string {
	if e.Body == "" {
		return e.Error()
	}
	return e.Body
}

// Client is safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	eventStream bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. It should not set a
// total timeout; streams are bounded by the caller's context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithEventStream asks the relay for event-stream framing instead of raw
// text.
func WithEventStream(enabled bool) Option {
	return func(c *Client) {
		c.eventStream = enabled
	}
}

// New returns a client for the relay at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the relay address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health returns nil when the relay reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+HealthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// ListScenarios returns the library's scenario summaries, sorted by id.
func (c *Client) ListScenarios(ctx context.Context) ([]scenario.Summary, error) {
	var out []scenario.Summary
	if err := c.getJSON(ctx, ScenariosPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetScenario fetches one scenario by id.
func (c *Client) GetScenario(ctx context.Context, id string) (*scenario.Scenario, error) {
	var out scenario.Scenario
	if err := c.getJSON(ctx, ScenariosPath+"/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) newChatRequest(ctx context.Context, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ChatPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.eventStream {
		req.Header.Set("Accept", EventStreamType)
	} else {
		req.Header.Set("Accept", "text/plain")
	}
	return req, nil
}

func statusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	se := &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		se.Message = er.Error
		se.Detail = er.Detail
	}
	return se
}
