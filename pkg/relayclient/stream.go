package relayclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"unicode/utf8"

	"github.com/jwebster45206/story-relay/pkg/chat"
	"github.com/jwebster45206/story-relay/pkg/eventstream"
)

const readBufferSize = 4096

// Stream sends one turn to the relay and calls onFragment, in order, with
// each piece of assistant text as it arrives. It returns nil when the
// response completed normally.
//
// A non-2xx answer is a *StatusError. A response that ends early is
// ErrUpstreamInterrupted. Cancelling ctx stops the stream and Stream
// returns ctx.Err().
func (c *Client) Stream(ctx context.Context, turn chat.TurnRequest, onFragment func(string)) error {
	req, err := c.newChatRequest(ctx, turn)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == EventStreamType {
		return readEventStream(ctx, resp.Body, onFragment)
	}
	return readRaw(ctx, resp.Body, onFragment)
}

// readEventStream forwards decoded payloads until the done marker.
func readEventStream(ctx context.Context, body io.Reader, onFragment func(string)) error {
	dec := eventstream.NewDecoder()
	buf := make([]byte, readBufferSize)

	// handle returns true once the stream is logically complete
	handle := func(events []eventstream.Event) (bool, error) {
		for _, ev := range events {
			if ev.Type == "error" {
				return true, fmt.Errorf("%w: %s", ErrUpstreamInterrupted, ev.Data)
			}
			p := eventstream.DecodePayload(ev.Data)
			if p.Kind == eventstream.PayloadDone {
				return true, nil
			}
			if text, ok := p.Fragment(); ok {
				onFragment(text)
			}
		}
		return false, nil
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if done, herr := handle(dec.Feed(buf[:n])); done {
				return herr
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", ErrUpstreamInterrupted, err)
		}
		if done, herr := handle(dec.Flush()); done {
			return herr
		}
		return ErrUpstreamInterrupted
	}
}

// readRaw forwards text as it arrives. Multi-byte characters split across
// reads are carried to the next read. A trailing newline is held back
// until more text follows: the relay ends every complete raw response with
// a single newline, so a held newline at EOF is the completion marker and
// is not forwarded.
func readRaw(ctx context.Context, body io.Reader, onFragment func(string)) error {
	var (
		carry     []byte
		heldNL    bool
		buf       = make([]byte, readBufferSize)
		emitChunk = func(text string) {
			if heldNL {
				text = "\n" + text
				heldNL = false
			}
			if n := len(text); n > 0 && text[n-1] == '\n' {
				text = text[:n-1]
				heldNL = true
			}
			if text != "" {
				onFragment(text)
			}
		}
	)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			cut := completePrefix(data)
			emitChunk(string(data[:cut]))
			carry = append([]byte(nil), data[cut:]...)
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", ErrUpstreamInterrupted, err)
		}
		if len(carry) > 0 {
			// truncated sequence at EOF; pass the bytes through as-is
			emitChunk(string(carry))
		}
		if !heldNL {
			return ErrUpstreamInterrupted
		}
		return nil
	}
}

// completePrefix returns the length of the longest prefix of data that
// does not end inside a multi-byte UTF-8 sequence.
func completePrefix(data []byte) int {
	for k := 1; k <= utf8.UTFMax-1 && k <= len(data); k++ {
		i := len(data) - k
		if utf8.RuneStart(data[i]) {
			if utf8.FullRune(data[i:]) {
				return len(data)
			}
			return i
		}
	}
	return len(data)
}
