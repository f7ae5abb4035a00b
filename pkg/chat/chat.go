package chat

import (
	"errors"
	"strings"
)

// Mode is the kind of turn the user is taking.
type Mode string

const (
	ModeDo       Mode = "do"
	ModeSay      Mode = "say"
	ModeThink    Mode = "think"
	ModeStory    Mode = "story"
	ModeContinue Mode = "continue"
	ModeErase    Mode = "erase"
)

// Modes lists every accepted mode in toolbar order.
var Modes = []Mode{ModeDo, ModeSay, ModeThink, ModeStory, ModeContinue, ModeErase}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// WorldContext describes the story world. All fields are optional.
type WorldContext struct {
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
	Opening string `json:"opening,omitempty"`
}

// Rules steer the narrator. All fields are optional.
type Rules struct {
	AIInstructions string `json:"aiInstructions,omitempty"`
	AuthorsNote    string `json:"authorsNote,omitempty"`
}

// LoreEntry is a single lorebook fact injected into the system prompt.
type LoreEntry struct {
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
	Pinned bool   `json:"pinned,omitempty" yaml:"pinned,omitempty"`
}

// TurnRequest is the body of a relay call. It exists for one
// request/response cycle only.
type TurnRequest struct {
	Mode    Mode         `json:"mode"`
	Message string       `json:"message,omitempty"`
	Plot    WorldContext `json:"plot"`
	Rules   Rules        `json:"rules"`
	Lore    []LoreEntry  `json:"lore,omitempty"`
}

const (
	ChatRoleUser   = "user"
	ChatRoleAgent  = "assistant"
	ChatRoleSystem = "system"
)

// ChatMessage is one message of an upstream chat-completion exchange.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

var (
	ErrModeRequired  = errors.New("mode required")
	ErrInvalidMode   = errors.New("invalid mode")
	ErrInputRequired = errors.New("input required")
)

// Validate checks the request in order; the first failure wins.
// Erase is accepted here like any message-bearing mode.
func (tr *TurnRequest) Validate() error {
	if tr.Mode == "" {
		return ErrModeRequired
	}
	if !tr.Mode.Valid() {
		return ErrInvalidMode
	}
	if tr.Mode != ModeContinue && strings.TrimSpace(tr.Message) == "" {
		return ErrInputRequired
	}
	return nil
}
