package services

import (
	"context"

	"github.com/jwebster45206/story-relay/pkg/chat"
)

// StreamChunk is one step of a streamed completion. Exactly one chunk
// with Done or Error set ends the stream, and the channel is then closed.
type StreamChunk struct {
	Content string
	Done    bool
	Error   error
}

// LLMService defines the interface for interacting with the LLM API
type LLMService interface {
	// Configured reports whether the service has a credential to call
	// the upstream provider.
	Configured() bool

	// ChatStream opens a streamed completion. An error is returned only
	// when the stream could not be established; failures after that
	// arrive as a chunk with Error set. Cancelling ctx stops the stream.
	ChatStream(ctx context.Context, messages []chat.ChatMessage) (<-chan StreamChunk, error)
}
