package transcript

import (
	"context"
	"errors"
	"strings"

	"github.com/jwebster45206/story-relay/pkg/chat"
)

// Status is the reducer's position in a turn.
type Status int

const (
	Idle Status = iota
	AwaitingResponse
)

func (s Status) String() string {
	if s == AwaitingResponse {
		return "awaiting-response"
	}
	return "idle"
}

// Error markers written into the transcript when a turn fails.
const (
	AbortedMarker      = "(stream aborted)"
	ErrorMarker        = "(error)"
	NetworkErrorMarker = "(network error)"
)

// ErrTurnInFlight is returned when the transcript is edited or a new turn
// is submitted while a response is still streaming.
var ErrTurnInFlight = errors.New("a response is still streaming")

// ErrStoryStarted is returned when the setup is changed after the first
// turn was sent.
var ErrStoryStarted = errors.New("the story has started; setup can only change before the first turn")

// ResponseError is implemented by errors that carry the relay's own error
// text, such as a rejected request.
type ResponseError interface {
	error
	ResponseText() string
}

// Setup is the world state sent with every turn of a session.
type Setup struct {
	World chat.WorldContext
	Rules chat.Rules
	Lore  []chat.LoreEntry
}

// Session reduces user submissions and streamed fragments into a
// Transcript. It is not safe for concurrent use; callers serialize
// access (the console does so through its update loop).
type Session struct {
	setup      Setup
	transcript Transcript
	status     Status

	accumulator strings.Builder
	inFlight    bool // an assistant turn was created by the current stream
	started     bool // a turn has been sent to the relay

	redo [][]Turn
}

// NewSession starts a session whose transcript is the world's opening.
func NewSession(setup Setup) *Session {
	return &Session{
		setup:      setup,
		transcript: Opening(setup.World),
	}
}

// Transcript returns the current transcript. The returned value is never
// modified by later transitions.
func (s *Session) Transcript() Transcript {
	return s.transcript
}

// Status reports whether a response is being awaited.
func (s *Session) Status() Status {
	return s.status
}

// Setup returns the world state sent with each turn.
func (s *Session) Setup() Setup {
	return s.setup
}

// Reconfigure replaces the setup and resets the transcript to the new
// opening. It is only allowed before the first turn is sent.
func (s *Session) Reconfigure(setup Setup) error {
	if s.status == AwaitingResponse {
		return ErrTurnInFlight
	}
	if s.started {
		return ErrStoryStarted
	}
	s.setup = setup
	s.transcript = Opening(setup.World)
	s.redo = nil
	return nil
}

// CanRedo reports whether an undone pair can be restored.
func (s *Session) CanRedo() bool {
	return len(s.redo) > 0
}

// Submit applies a user submission. It returns the request to send to the
// relay, or nil when no network call is needed (erase, or blank input for
// a mode that needs text). When a request is returned the caller clears
// its input field.
func (s *Session) Submit(mode chat.Mode, input string) (*chat.TurnRequest, error) {
	if s.status == AwaitingResponse {
		return nil, ErrTurnInFlight
	}

	if mode == chat.ModeErase {
		s.trim()
		return nil, nil
	}
	if !mode.Valid() {
		return nil, chat.ErrInvalidMode
	}
	if mode != chat.ModeContinue && strings.TrimSpace(input) == "" {
		return nil, nil
	}

	line := FormatUserLine(mode, input)
	message := ""
	if mode != chat.ModeContinue {
		s.transcript = s.transcript.Append(Turn{Role: RoleUser, Text: line})
		message = line
	}

	s.redo = nil
	s.started = true
	s.status = AwaitingResponse
	s.accumulator.Reset()
	s.inFlight = false

	return &chat.TurnRequest{
		Mode:    mode,
		Message: message,
		Plot:    s.setup.World,
		Rules:   s.setup.Rules,
		Lore:    s.setup.Lore,
	}, nil
}

// ApplyFragment adds streamed text to the in-flight assistant turn,
// creating it on the first fragment. The turn's text is always the full
// accumulated response. Fragments outside a turn are ignored.
func (s *Session) ApplyFragment(text string) {
	if s.status != AwaitingResponse {
		return
	}
	s.accumulator.WriteString(text)
	turn := Turn{Role: RoleAssistant, Text: s.accumulator.String()}
	if s.inFlight {
		s.transcript = s.transcript.ReplaceLast(turn)
		return
	}
	s.transcript = s.transcript.Append(turn)
	s.inFlight = true
}

// Finish ends the current turn. A non-nil err leaves a marker in the
// transcript: on the partial assistant turn when one exists, otherwise as
// a new assistant turn.
func (s *Session) Finish(err error) {
	if s.status != AwaitingResponse {
		return
	}
	s.status = Idle
	defer func() {
		s.accumulator.Reset()
		s.inFlight = false
	}()

	if err == nil {
		return
	}

	marker := Marker(err)
	if s.inFlight {
		text := s.accumulator.String()
		if text != "" && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		s.transcript = s.transcript.ReplaceLast(Turn{Role: RoleAssistant, Text: text + marker})
		return
	}
	s.transcript = s.transcript.Append(Turn{Role: RoleAssistant, Text: marker})
}

// Undo removes the most recent assistant/user pair with the same rule as
// erase. The removed turns can be restored with Redo.
func (s *Session) Undo() error {
	if s.status == AwaitingResponse {
		return ErrTurnInFlight
	}
	s.trim()
	return nil
}

// Redo restores the turns removed by the latest Undo or erase.
func (s *Session) Redo() error {
	if s.status == AwaitingResponse {
		return ErrTurnInFlight
	}
	if len(s.redo) == 0 {
		return nil
	}
	last := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.transcript = s.transcript.Append(last...)
	return nil
}

func (s *Session) trim() {
	var removed []Turn
	s.transcript, removed = s.transcript.TrimLastPair()
	if len(removed) > 0 {
		s.redo = append(s.redo, removed)
	}
}

// Marker renders a failed turn's error for the transcript.
func Marker(err error) string {
	if errors.Is(err, context.Canceled) {
		return AbortedMarker
	}
	var re ResponseError
	if errors.As(err, &re) {
		return ErrorMarker + " " + re.ResponseText()
	}
	return NetworkErrorMarker + " " + err.Error()
}
