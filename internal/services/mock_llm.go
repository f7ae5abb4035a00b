package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/story-relay/pkg/chat"
)

// MockLLM is a mock implementation of LLMService for testing
type MockLLM struct {
	// Unconfigured makes Configured report false.
	Unconfigured bool

	// Chunks are streamed in order by ChatStream. When no chunk is
	// terminal a Done chunk is appended.
	Chunks []StreamChunk

	// StartErr is returned by ChatStream instead of a stream.
	StartErr error

	ChatStreamFunc func(ctx context.Context, messages []chat.ChatMessage) (<-chan StreamChunk, error)

	// Track calls for testing
	ChatStreamCalls [][]chat.ChatMessage

	mu sync.Mutex // protects ChatStreamCalls
}

// NewMockLLM creates a mock that streams the given text fragments and
// then completes.
func NewMockLLM(fragments ...string) *MockLLM {
	m := &MockLLM{}
	for _, f := range fragments {
		m.Chunks = append(m.Chunks, StreamChunk{Content: f})
	}
	return m
}

func (m *MockLLM) Configured() bool {
	return !m.Unconfigured
}

// ChatStream records the call and replays Chunks.
func (m *MockLLM) ChatStream(ctx context.Context, messages []chat.ChatMessage) (<-chan StreamChunk, error) {
	m.mu.Lock()
	m.ChatStreamCalls = append(m.ChatStreamCalls, messages)
	m.mu.Unlock()

	if m.ChatStreamFunc != nil {
		return m.ChatStreamFunc(ctx, messages)
	}
	if m.StartErr != nil {
		return nil, m.StartErr
	}

	chunks := append([]StreamChunk(nil), m.Chunks...)
	if n := len(chunks); n == 0 || (!chunks[n-1].Done && chunks[n-1].Error == nil) {
		chunks = append(chunks, StreamChunk{Done: true})
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
			if c.Done || c.Error != nil {
				return
			}
		}
	}()
	return ch, nil
}

// Calls returns a copy of the recorded ChatStream calls.
func (m *MockLLM) Calls() [][]chat.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]chat.ChatMessage(nil), m.ChatStreamCalls...)
}
