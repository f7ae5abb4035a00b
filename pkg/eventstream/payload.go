package eventstream

import (
	"encoding/json"
	"strings"
)

// DoneSentinel is the payload that marks the logical end of a stream.
const DoneSentinel = "[DONE]"

// PayloadKind tags how an event payload was resolved.
type PayloadKind int

const (
	PayloadDone PayloadKind = iota
	PayloadString
	PayloadObject
	PayloadOther
	PayloadUnparseable
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadDone:
		return "done"
	case PayloadString:
		return "string"
	case PayloadObject:
		return "object"
	case PayloadOther:
		return "other"
	case PayloadUnparseable:
		return "unparseable"
	default:
		return "unknown"
	}
}

// Payload is an event's data resolved once into a tagged union.
// Text holds the string value, the object's content (possibly empty),
// or the raw data for unparseable payloads.
type Payload struct {
	Kind PayloadKind
	Text string
}

// objectPayload covers both the bare {"content": "..."} shape and the
// OpenAI-compatible chunk shape used by OpenRouter.
type objectPayload struct {
	Content *string `json:"content"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// DecodePayload classifies an event's data.
func DecodePayload(data string) Payload {
	if data == DoneSentinel {
		return Payload{Kind: PayloadDone}
	}

	trimmed := strings.TrimSpace(data)
	if !json.Valid([]byte(trimmed)) {
		return Payload{Kind: PayloadUnparseable, Text: data}
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
			return Payload{Kind: PayloadUnparseable, Text: data}
		}
		return Payload{Kind: PayloadString, Text: s}
	case '{':
		var obj objectPayload
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			// valid JSON with a differently-typed content field
			return Payload{Kind: PayloadObject}
		}
		return Payload{Kind: PayloadObject, Text: obj.text()}
	default:
		return Payload{Kind: PayloadOther}
	}
}

func (o objectPayload) text() string {
	if o.Content != nil && *o.Content != "" {
		return *o.Content
	}
	if len(o.Choices) > 0 {
		if c := o.Choices[0].Delta.Content; c != "" {
			return c
		}
		return o.Choices[0].Message.Content
	}
	return ""
}

// Fragment returns the text to forward for this payload, if any. Empty
// text is never forwarded.
func (p Payload) Fragment() (string, bool) {
	switch p.Kind {
	case PayloadString, PayloadObject, PayloadUnparseable:
		return p.Text, p.Text != ""
	default:
		return "", false
	}
}

// Fragments decodes each event's payload and returns the forwarded texts
// in order.
func Fragments(events []Event) []string {
	var out []string
	for _, ev := range events {
		if text, ok := DecodePayload(ev.Data).Fragment(); ok {
			out = append(out, text)
		}
	}
	return out
}
