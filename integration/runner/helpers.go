package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/story-relay/internal/middleware"
	"github.com/jwebster45206/story-relay/pkg/relayclient"
)

type requestIDKey struct{}

// WithRequestID makes requests sent with ctx carry id as their X-Request-ID.
func WithRequestID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

type requestIDTransport struct {
	base http.RoundTripper
}

func (t requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id, ok := req.Context().Value(requestIDKey{}).(uuid.UUID); ok {
		req = req.Clone(req.Context())
		req.Header.Set(middleware.RequestIDHeader, id.String())
	}
	return t.base.RoundTrip(req)
}

// NewHTTPClient returns a client without an overall timeout (streams are
// bounded by the step context) that forwards request ids.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: requestIDTransport{base: http.DefaultTransport}}
}

// PostRawChat posts body verbatim to the chat endpoint. It returns the
// status code and, for non-2xx replies, the decoded error body.
func PostRawChat(ctx context.Context, client *http.Client, baseURL, body string) (int, *relayclient.ErrorResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+relayclient.ChatPath, strings.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to post chat: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 300 {
		return resp.StatusCode, nil, nil
	}

	var errResp relayclient.ErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("error response is not JSON: %s", strings.TrimSpace(string(data)))
	}
	return resp.StatusCode, &errResp, nil
}
