// Package transcript holds the client-side story transcript and the
// reducer that applies user submissions and streamed fragments to it.
//
// Transcript values are never mutated in place: every transition returns a
// new slice, so a snapshot handed to a renderer stays valid.
package transcript

import (
	"github.com/jwebster45206/story-relay/pkg/chat"
)

// Role attributes a turn to the user or the narrator.
type Role string

const (
	RoleUser      Role = chat.ChatRoleUser
	RoleAssistant Role = chat.ChatRoleAgent
)

// Turn is one transcript entry.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Transcript is an ordered list of turns.
type Transcript []Turn

// NewGameText is shown when a world has no title, summary or opening.
const NewGameText = "A new tale begins."

// Opening builds the first turns of a story from its world context.
func Opening(world chat.WorldContext) Transcript {
	var t Transcript
	if world.Title != "" {
		t = t.Append(Turn{Role: RoleAssistant, Text: "World — " + world.Title})
	}
	if world.Summary != "" {
		t = t.Append(Turn{Role: RoleAssistant, Text: world.Summary})
	}
	if world.Opening != "" {
		t = t.Append(Turn{Role: RoleAssistant, Text: world.Opening})
	}
	if len(t) == 0 {
		t = t.Append(Turn{Role: RoleAssistant, Text: NewGameText})
	}
	return t
}

// Append returns t with turn added at the end.
func (t Transcript) Append(turn ...Turn) Transcript {
	out := make(Transcript, 0, len(t)+len(turn))
	out = append(out, t...)
	return append(out, turn...)
}

// ReplaceLast returns t with its final turn replaced. On an empty
// transcript the turn is appended.
func (t Transcript) ReplaceLast(turn Turn) Transcript {
	if len(t) == 0 {
		return t.Append(turn)
	}
	out := make(Transcript, len(t))
	copy(out, t)
	out[len(out)-1] = turn
	return out
}

// TrimLastPair removes the trailing assistant turn if there is one, then
// the trailing user turn if there is one. It returns the shortened
// transcript and the removed turns in their original order.
func (t Transcript) TrimLastPair() (Transcript, []Turn) {
	n := len(t)
	if n > 0 && t[n-1].Role == RoleAssistant {
		n--
	}
	if n > 0 && t[n-1].Role == RoleUser {
		n--
	}
	removed := make([]Turn, len(t)-n)
	copy(removed, t[n:])

	out := make(Transcript, n)
	copy(out, t[:n])
	return out, removed
}

// Last returns the final turn, if any.
func (t Transcript) Last() (Turn, bool) {
	if len(t) == 0 {
		return Turn{}, false
	}
	return t[len(t)-1], true
}
