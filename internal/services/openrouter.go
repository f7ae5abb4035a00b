package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/story-relay/pkg/chat"
	"github.com/jwebster45206/story-relay/pkg/eventstream"
)

const (
	OpenRouterModel       = "mistralai/mistral-7b-instruct:free"
	OpenRouterMaxTokens   = 2048
	OpenRouterTemperature = 0.8

	// time allowed for the upstream to start answering; a stream that has
	// started is never cut off by a timeout
	responseHeaderTimeout = 60 * time.Second
	readBufferSize        = 4096
	maxErrorBodySize      = 64 << 10
)

// UpstreamError is returned when the provider refuses to start a stream.
type UpstreamError struct {
	StatusCode int // 0 for transport failures
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return "upstream request failed: " + e.Body
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// OpenRouterService implements LLMService for OpenRouter's
// OpenAI-compatible chat completions API.
type OpenRouterService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// OpenRouterChatRequest represents the request structure for chat completions
type OpenRouterChatRequest struct {
	Model       string             `json:"model"`
	Messages    []chat.ChatMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
}

// NewOpenRouterService creates a new OpenRouter service. apiKey may be
// empty, in which case Configured reports false.
func NewOpenRouterService(apiKey, baseURL string, logger *slog.Logger) *OpenRouterService {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = responseHeaderTimeout
	transport.DialContext = (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &OpenRouterService{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		// no client Timeout: it would cut long streams short
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
}

func (s *OpenRouterService) Configured() bool {
	return s.apiKey != ""
}

// ChatStream starts a streamed completion and decodes the provider's
// event stream into chunks on a separate goroutine.
func (s *OpenRouterService) ChatStream(ctx context.Context, messages []chat.ChatMessage) (<-chan StreamChunk, error) {
	reqBody, err := json.Marshal(OpenRouterChatRequest{
		Model:       OpenRouterModel,
		Messages:    messages,
		MaxTokens:   OpenRouterMaxTokens,
		Temperature: OpenRouterTemperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	s.logger.Debug("Opening OpenRouter stream",
		"model", OpenRouterModel,
		"message_count", len(messages))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &UpstreamError{Body: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		s.logger.Warn("OpenRouter rejected request",
			"status_code", resp.StatusCode,
			"response_body", string(body))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: "No body"}
	}

	ch := make(chan StreamChunk)
	go s.stream(ctx, resp.Body, ch)
	return ch, nil
}

// stream owns body and ch. Every send also watches ctx so an abandoned
// consumer never blocks the goroutine.
func (s *OpenRouterService) stream(ctx context.Context, body io.ReadCloser, ch chan<- StreamChunk) {
	defer close(ch)
	defer func() { _ = body.Close() }()

	send := func(c StreamChunk) bool {
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	dec := eventstream.NewDecoder()
	buf := make([]byte, readBufferSize)

	// forward returns true once a terminal chunk was sent
	forward := func(events []eventstream.Event) bool {
		for _, ev := range events {
			p := eventstream.DecodePayload(ev.Data)
			if p.Kind == eventstream.PayloadDone {
				send(StreamChunk{Done: true})
				return true
			}
			if p.Kind == eventstream.PayloadUnparseable {
				s.logger.Debug("Forwarding unparseable stream payload", "data", ev.Data)
			}
			if text, ok := p.Fragment(); ok {
				if !send(StreamChunk{Content: text}) {
					return true
				}
			}
		}
		return false
	}

	for {
		n, err := body.Read(buf)
		if n > 0 && forward(dec.Feed(buf[:n])) {
			return
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			send(StreamChunk{Error: ctx.Err()})
			return
		}
		if !errors.Is(err, io.EOF) {
			s.logger.Warn("OpenRouter stream interrupted", "error", err)
			send(StreamChunk{Error: fmt.Errorf("upstream stream interrupted: %w", err)})
			return
		}
		if forward(dec.Flush()) {
			return
		}
		// a clean EOF without [DONE] still ends the turn normally
		send(StreamChunk{Done: true})
		return
	}
}
