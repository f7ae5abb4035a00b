// Package eventstream decodes the line-oriented event-stream framing used by
// streamed chat completions ("data: ..." lines separated by blank lines).
//
// The Decoder is incremental: bytes may be fed in arbitrarily small chunks,
// and partial lines (including partial multi-byte UTF-8 sequences) are held
// until the rest arrives. Feeding the same bytes in any chunking yields the
// same events in the same order.
package eventstream

import (
	"bytes"
	"strconv"
	"strings"
)

// State is the position of the decoder relative to event boundaries.
type State int

const (
	// BetweenEvents means no field of the next event has been seen yet.
	BetweenEvents State = iota
	// AccumulatingEvent means at least one field line of an event has been
	// read and a blank line will dispatch it.
	AccumulatingEvent
)

func (s State) String() string {
	switch s {
	case BetweenEvents:
		return "between-events"
	case AccumulatingEvent:
		return "accumulating-event"
	default:
		return "unknown"
	}
}

// Event is one dispatched event.
type Event struct {
	Type string // "event" field, empty when not set
	ID   string
	Data string // data lines joined with "\n"
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decoder re-frames a byte stream into Events. It is not safe for
// concurrent use.
type Decoder struct {
	state State

	pending    []byte // bytes of an unterminated line
	skipLF     bool   // previous chunk ended on '\r'
	bomChecked bool

	eventType string
	lastID    string
	data      strings.Builder
	hasData   bool

	// Retry holds the most recent reconnect interval in milliseconds
	// announced by the stream, or 0 if none was sent.
	Retry int
}

// NewDecoder returns a decoder positioned between events.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// State reports whether the decoder is inside an event.
func (d *Decoder) State() State {
	return d.state
}

// Feed consumes the next chunk of the stream and returns every event
// completed by it.
func (d *Decoder) Feed(chunk []byte) []Event {
	if !d.bomChecked {
		d.pending = append(d.pending, chunk...)
		if len(d.pending) < len(utf8BOM) && bytes.HasPrefix(utf8BOM, d.pending) {
			return nil
		}
		d.bomChecked = true
		chunk = bytes.TrimPrefix(d.pending, utf8BOM)
		d.pending = nil
	}

	var events []Event
	start := 0
	for i := 0; i < len(chunk); i++ {
		b := chunk[i]
		if d.skipLF {
			d.skipLF = false
			if b == '\n' {
				start = i + 1
				continue
			}
		}
		if b != '\n' && b != '\r' {
			continue
		}

		var line []byte
		if len(d.pending) > 0 {
			line = append(d.pending, chunk[start:i]...)
			d.pending = nil
		} else {
			line = chunk[start:i]
		}
		if ev, ok := d.processLine(string(line)); ok {
			events = append(events, ev)
		}
		if b == '\r' {
			d.skipLF = true
		}
		start = i + 1
	}
	if start < len(chunk) {
		d.pending = append(d.pending, chunk[start:]...)
	}
	return events
}

// Flush is called at end of stream. An unterminated final line is
// processed and an event still being accumulated is dispatched.
func (d *Decoder) Flush() []Event {
	var events []Event
	if len(d.pending) > 0 {
		line := string(bytes.TrimPrefix(d.pending, utf8BOM))
		d.pending = nil
		if ev, ok := d.processLine(line); ok {
			events = append(events, ev)
		}
	}
	if ev, ok := d.dispatch(); ok {
		events = append(events, ev)
	}
	d.skipLF = false
	return events
}

func (d *Decoder) processLine(line string) (Event, bool) {
	if line == "" {
		return d.dispatch()
	}
	if strings.HasPrefix(line, ":") {
		return Event{}, false
	}

	field, value := line, ""
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		field = line[:idx]
		value = strings.TrimPrefix(line[idx+1:], " ")
	}

	switch field {
	case "data":
		if d.hasData {
			d.data.WriteByte('\n')
		}
		d.data.WriteString(value)
		d.hasData = true
	case "event":
		d.eventType = value
	case "id":
		if !strings.ContainsRune(value, 0) {
			d.lastID = value
		}
	case "retry":
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			d.Retry = ms
		}
	default:
		// unknown fields are ignored
		return Event{}, false
	}
	d.state = AccumulatingEvent
	return Event{}, false
}

func (d *Decoder) dispatch() (Event, bool) {
	defer func() {
		d.state = BetweenEvents
		d.eventType = ""
		d.data.Reset()
		d.hasData = false
	}()
	if !d.hasData {
		return Event{}, false
	}
	return Event{
		Type: d.eventType,
		ID:   d.lastID,
		Data: d.data.String(),
	}, true
}
