package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/story-relay/internal/logger"
	"github.com/jwebster45206/story-relay/internal/middleware"
	"github.com/jwebster45206/story-relay/internal/services"
	"github.com/jwebster45206/story-relay/pkg/chat"
	"github.com/jwebster45206/story-relay/pkg/prompts"
)

const (
	maxRequestBodySize = 1 << 20

	msgMethodNotAllowed   = "Method not allowed"
	msgInvalidBody        = "Invalid request body"
	msgModeRequired       = "mode required"
	msgInvalidMode        = "invalid mode"
	msgInputRequired      = "Input required"
	msgMissingCredentials = "Server missing OPENROUTER_API_KEY"
	msgUpstreamError      = "Upstream error"
)

// RelayHandler turns one TurnRequest into a streamed narrator reply.
// POST /api/chat
type RelayHandler struct {
	llmService services.LLMService
	logger     *slog.Logger
}

func NewRelayHandler(llmService services.LLMService, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		llmService: llmService,
		logger:     logger,
	}
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithRequestID(h.logger, middleware.RequestID(r.Context()))

	if r.Method != http.MethodPost {
		log.Warn("Method not allowed for chat endpoint",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, log, http.StatusMethodNotAllowed, msgMethodNotAllowed, "")
		return
	}

	var req chat.TurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		log.Warn("Invalid request body", "error", err)
		writeError(w, log, http.StatusBadRequest, msgInvalidBody, "")
		return
	}

	if err := req.Validate(); err != nil {
		log.Warn("Rejected turn request", "error", err, "mode", req.Mode)
		writeError(w, log, http.StatusBadRequest, validationMessage(err), "")
		return
	}

	if !h.llmService.Configured() {
		log.Error("Upstream credential is not configured")
		writeError(w, log, http.StatusInternalServerError, msgMissingCredentials, "")
		return
	}

	log = log.With("mode", req.Mode)
	ctx := r.Context()
	start := time.Now()

	stream, err := h.llmService.ChatStream(ctx, prompts.BuildMessages(req))
	if err != nil {
		if ctx.Err() != nil {
			log.Info("Client went away before the upstream answered")
			return
		}
		detail := err.Error()
		var ue *services.UpstreamError
		if errors.As(err, &ue) {
			detail = ue.Body
		}
		logger.WithError(log, err).Warn("Upstream refused stream")
		writeError(w, log, http.StatusBadGateway, msgUpstreamError, detail)
		return
	}

	out := newFramer(w, acceptsEventStream(r))
	out.begin()

	var (
		fragments int
		streamErr error
		done      bool
	)
	for chunk := range stream {
		if chunk.Error != nil {
			streamErr = chunk.Error
			break
		}
		if chunk.Content != "" {
			if err := out.fragment(chunk.Content); err != nil {
				log.Info("Client write failed", "error", err)
				return
			}
			fragments++
		}
		if chunk.Done {
			done = true
			break
		}
	}

	if ctx.Err() != nil {
		log.Info("Client disconnected mid-stream", "fragments", fragments)
		return
	}
	if streamErr == nil && !done {
		streamErr = errors.New("stream closed without completion")
	}
	if streamErr != nil {
		logger.WithError(log, streamErr).Warn("Upstream failed mid-stream", "fragments", fragments)
		out.fail(streamErr)
		return
	}

	out.finish()
	log.Info("Relay turn completed",
		"fragments", fragments,
		"duration", time.Since(start))
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrModeRequired):
		return msgModeRequired
	case errors.Is(err, chat.ErrInvalidMode):
		return msgInvalidMode
	case errors.Is(err, chat.ErrInputRequired):
		return msgInputRequired
	default:
		return msgInvalidBody
	}
}

func acceptsEventStream(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept") {
		if strings.Contains(v, "text/event-stream") {
			return true
		}
	}
	return false
}

// framer writes the response body in one of the two output framings.
type framer struct {
	w           http.ResponseWriter
	eventStream bool
}

func newFramer(w http.ResponseWriter, eventStream bool) *framer {
	return &framer{w: w, eventStream: eventStream}
}

func (f *framer) flush() {
	if flusher, ok := f.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// begin commits the headers so the client sees the stream open at once.
func (f *framer) begin() {
	h := f.w.Header()
	if f.eventStream {
		h.Set("Content-Type", "text/event-stream")
		h.Set("Connection", "keep-alive")
	} else {
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("X-Content-Type-Options", "nosniff")
	}
	h.Set("Cache-Control", "no-cache")
	f.w.WriteHeader(http.StatusOK)
	f.flush()
}

func (f *framer) fragment(text string) error {
	var err error
	if f.eventStream {
		err = f.event("", struct {
			Content string `json:"content"`
		}{text})
	} else {
		_, err = io.WriteString(f.w, text)
	}
	if err != nil {
		return err
	}
	f.flush()
	return nil
}

func (f *framer) finish() {
	if f.eventStream {
		_, _ = io.WriteString(f.w, "data: [DONE]\n\n")
	} else {
		_, _ = io.WriteString(f.w, "\n")
	}
	f.flush()
}

// fail reports a failure after the headers were committed. Raw output has
// no in-band error channel, so the connection is aborted and the client
// sees a truncated body instead of a clean end.
func (f *framer) fail(err error) {
	if !f.eventStream {
		panic(http.ErrAbortHandler)
	}
	_ = f.event("error", ErrorResponse{Error: msgUpstreamError, Detail: err.Error()})
	f.flush()
}

func (f *framer) event(name string, v any) error {
	var buf bytes.Buffer
	if name != "" {
		buf.WriteString("event: " + name + "\n")
	}
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode ended the data line; a blank line ends the event
	buf.WriteByte('\n')
	_, err := f.w.Write(buf.Bytes())
	return err
}
