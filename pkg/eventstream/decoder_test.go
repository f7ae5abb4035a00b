package eventstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = ": OPENROUTER PROCESSING\n\n" +
	"data: {\"content\":\"Hi \"}\n\n" +
	"data: {\"content\":\"thére – \"}\r\n\r\n" +
	"retry: 3000\n" +
	"data: \"plain string\"\r\r" +
	"data: not json at all\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"龍\"}}]}\n\n" +
	"data: {\"role\":\"assistant\"}\n\n" +
	"data: [DONE]\n\n"

var sampleFragments = []string{"Hi ", "thére – ", "plain string", "not json at all", "龍"}

func decodeAll(chunks [][]byte) []Event {
	d := NewDecoder()
	var events []Event
	for _, c := range chunks {
		events = append(events, d.Feed(c)...)
	}
	return append(events, d.Flush()...)
}

func TestDecoder_WholeStream(t *testing.T) {
	events := decodeAll([][]byte{[]byte(sampleStream)})
	require.Len(t, events, 7)
	assert.Equal(t, sampleFragments, Fragments(events))
}

func TestDecoder_FragmentationInvariant(t *testing.T) {
	whole := Fragments(decodeAll([][]byte{[]byte(sampleStream)}))

	raw := []byte(sampleStream)
	for _, size := range []int{1, 2, 3, 5, 7, 13} {
		var chunks [][]byte
		for i := 0; i < len(raw); i += size {
			end := i + size
			if end > len(raw) {
				end = len(raw)
			}
			// copy so the decoder cannot rely on the caller's buffer
			chunk := make([]byte, end-i)
			copy(chunk, raw[i:end])
			chunks = append(chunks, chunk)
		}
		assert.Equal(t, whole, Fragments(decodeAll(chunks)), "chunk size %d", size)
	}
}

func TestDecoder_SplitMultiByteRune(t *testing.T) {
	// "é" is 0xC3 0xA9; split it across two chunks.
	d := NewDecoder()
	assert.Empty(t, d.Feed([]byte("data: caf\xC3")))
	events := d.Feed([]byte("\xA9\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "café", events[0].Data)
}

func TestDecoder_States(t *testing.T) {
	d := NewDecoder()
	assert.Equal(t, BetweenEvents, d.State())

	d.Feed([]byte("event: chunk\n"))
	assert.Equal(t, AccumulatingEvent, d.State())

	events := d.Feed([]byte("data: a\ndata: b\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, Event{Type: "chunk", Data: "a\nb"}, events[0])
	assert.Equal(t, BetweenEvents, d.State())
}

func TestDecoder_CommentsAndBlankLinesOnly(t *testing.T) {
	events := decodeAll([][]byte{[]byte(": keepalive\n\n\n: another\n\n")})
	assert.Empty(t, events)
}

func TestDecoder_EventWithoutDataIsNotDispatched(t *testing.T) {
	events := decodeAll([][]byte{[]byte("event: ping\n\n")})
	assert.Empty(t, events)
}

func TestDecoder_RetryAndID(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte("id: 7\nretry: 1500\ndata: x\n\nretry: nope\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "7", events[0].ID)
	assert.Equal(t, 1500, d.Retry)
}

func TestDecoder_ByteOrderMark(t *testing.T) {
	stream := []byte("\xEF\xBB\xBFdata: first\n\n")

	assert.Equal(t, []string{"first"}, Fragments(decodeAll([][]byte{stream})))

	var chunks [][]byte
	for _, b := range stream {
		chunks = append(chunks, []byte{b})
	}
	assert.Equal(t, []string{"first"}, Fragments(decodeAll(chunks)))
}

func TestDecoder_FlushDispatchesUnterminatedEvent(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Feed([]byte("data: tail")))
	events := d.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, "tail", events[0].Data)
	assert.Empty(t, d.Flush())
}

func TestDecoder_NoSpaceAfterColon(t *testing.T) {
	events := decodeAll([][]byte{[]byte("data:tight\n\ndata:  two spaces\n\n")})
	require.Len(t, events, 2)
	assert.Equal(t, "tight", events[0].Data)
	assert.Equal(t, " two spaces", events[1].Data)
}
