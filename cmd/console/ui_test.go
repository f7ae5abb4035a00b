package main

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/story-relay/internal/logger"
	"github.com/jwebster45206/story-relay/pkg/chat"
	"github.com/jwebster45206/story-relay/pkg/relayclient"
	"github.com/jwebster45206/story-relay/pkg/scenario"
	"github.com/jwebster45206/story-relay/pkg/textfilter"
	"github.com/jwebster45206/story-relay/pkg/transcript"
)

func newTestUI(t *testing.T) ConsoleUI {
	t.Helper()
	cfg := &ConsoleConfig{APIBaseURL: "http://127.0.0.1:1"}
	m := NewConsoleUI(cfg, relayclient.New(cfg.APIBaseURL), logger.Discard())
	return m.startSession(&scenario.Scenario{
		ID:      "harbor",
		Title:   "Harbor",
		Opening: "Fog rolls over the docks.",
		Rating:  scenario.RatingPG,
	})
}

func press(t *testing.T, m ConsoleUI, input string) ConsoleUI {
	t.Helper()
	m.textarea.SetValue(input)
	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next, ok := model.(ConsoleUI)
	require.True(t, ok)
	return next
}

func lastTurn(t *testing.T, m ConsoleUI) transcript.Turn {
	t.Helper()
	turn, ok := m.session.Transcript().Last()
	require.True(t, ok)
	return turn
}

func update(t *testing.T, m ConsoleUI, msg tea.Msg) ConsoleUI {
	t.Helper()
	model, _ := m.Update(msg)
	return model.(ConsoleUI)
}

// beginTurn puts the session in flight without touching the network.
func beginTurn(t *testing.T, m ConsoleUI, mode chat.Mode, input string) ConsoleUI {
	t.Helper()
	req, err := m.session.Submit(mode, input)
	require.NoError(t, err)
	require.NotNil(t, req)
	_, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.stream = make(chan tea.Msg)
	return m
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input, name, arg string
	}{
		{"/help", "help", ""},
		{"  /MODE  Say ", "mode", "Say"},
		{"/say Hello there", "say", "Hello there"},
		{"/", "", ""},
	}
	for _, tt := range tests {
		name, arg := parseCommand(tt.input)
		assert.Equal(t, tt.name, name, tt.input)
		assert.Equal(t, tt.arg, arg, tt.input)
	}
}

func TestNextMode(t *testing.T) {
	assert.Equal(t, chat.ModeSay, nextMode(chat.ModeDo))
	assert.Equal(t, chat.ModeDo, nextMode(chat.ModeContinue))
	assert.Equal(t, chat.ModeDo, nextMode(chat.ModeErase))
}

func TestConsoleUI_StartSession(t *testing.T) {
	m := newTestUI(t)
	assert.False(t, m.showScenarioModal)
	assert.NotNil(t, m.filter)
	assert.Equal(t, "Fog rolls over the docks.", lastTurn(t, m).Text)
}

func TestConsoleUI_ModeCommand(t *testing.T) {
	m := newTestUI(t)

	m = press(t, m, "/mode think")
	assert.Equal(t, chat.ModeThink, m.mode)
	assert.Empty(t, m.textarea.Value())

	m = press(t, m, "/mode erase")
	assert.Equal(t, chat.ModeThink, m.mode)
	assert.Contains(t, m.notice, "Unknown mode")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, chat.ModeStory, m.mode)
}

func TestConsoleUI_UnknownCommand(t *testing.T) {
	m := press(t, newTestUI(t), "/dance")
	assert.Contains(t, m.notice, "Unknown command /dance")
}

func TestConsoleUI_StreamedTurn(t *testing.T) {
	m := beginTurn(t, newTestUI(t), chat.ModeDo, "open the door")
	assert.True(t, m.streaming())

	m = update(t, m, fragmentMsg{text: "The damn door "})
	m = update(t, m, fragmentMsg{text: "creaks."})
	m = update(t, m, streamDoneMsg{})

	assert.False(t, m.streaming())
	assert.Nil(t, m.cancel)
	assert.Equal(t, transcript.Idle, m.session.Status())

	last := lastTurn(t, m)
	assert.Equal(t, "The damn door creaks.", last.Text)
	assert.Contains(t, renderTurn(last, m.filter, 80), "The dang door creaks.")
}

func TestConsoleUI_EscCancelsStream(t *testing.T) {
	m := beginTurn(t, newTestUI(t), chat.ModeSay, "hello")
	cancelled := false
	m.cancel = func() { cancelled = true }

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, cancelled)
	assert.False(t, m.showQuitModal)

	m = update(t, m, streamDoneMsg{err: context.Canceled})
	assert.Equal(t, transcript.AbortedMarker, lastTurn(t, m).Text)
}

func TestConsoleUI_SubmitWhileStreaming(t *testing.T) {
	m := beginTurn(t, newTestUI(t), chat.ModeDo, "run")
	before := len(m.session.Transcript())

	m = press(t, m, "again")
	assert.Equal(t, transcript.ErrTurnInFlight.Error(), m.notice)
	assert.Len(t, m.session.Transcript(), before)
}

func TestConsoleUI_EraseUndoRedo(t *testing.T) {
	m := beginTurn(t, newTestUI(t), chat.ModeDo, "wave")
	m = update(t, m, fragmentMsg{text: "A gull answers."})
	m = update(t, m, streamDoneMsg{})
	full := len(m.session.Transcript())

	m = press(t, m, "/erase")
	assert.Len(t, m.session.Transcript(), full-2)
	assert.True(t, m.session.CanRedo())

	m = press(t, m, "/redo")
	assert.Len(t, m.session.Transcript(), full)

	m = press(t, m, "/undo")
	assert.Len(t, m.session.Transcript(), full-2)

	m = press(t, m, "/redo")
	m = press(t, m, "/redo")
	assert.Equal(t, "Nothing to redo.", m.notice)
}

func TestConsoleUI_QuitModal(t *testing.T) {
	m := update(t, newTestUI(t), tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, m.showQuitModal)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	assert.False(t, m.showQuitModal)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRenderTurn(t *testing.T) {
	filter := textfilter.ForRating(scenario.RatingG)

	user := renderTurn(transcript.Turn{Role: transcript.RoleUser, Text: "> You shout hell"}, filter, 80)
	assert.Contains(t, user, "hell")

	narration := renderTurn(transcript.Turn{
		Role: transcript.RoleAssistant,
		Text: "What the hell\n" + transcript.AbortedMarker,
	}, filter, 80)
	assert.Contains(t, narration, "What the heck")
	assert.Contains(t, narration, transcript.AbortedMarker)
}

func TestIsMarker(t *testing.T) {
	assert.True(t, isMarker(transcript.AbortedMarker))
	assert.True(t, isMarker(transcript.ErrorMarker+" bad gateway"))
	assert.True(t, isMarker(transcript.NetworkErrorMarker+" dial tcp"))
	assert.False(t, isMarker("(error)s are rare"))
}

func TestConsoleUI_SetupCommands(t *testing.T) {
	m := newTestUI(t)

	m = press(t, m, "/title Lighthouse")
	assert.Equal(t, "Updated the title.", m.notice)
	assert.Equal(t, "Lighthouse", m.scenario.Title)
	assert.Equal(t, "Lighthouse", m.session.Setup().World.Title)
	assert.Equal(t, "World — Lighthouse", m.session.Transcript()[0].Text)

	m = press(t, m, "/summary A keeper waits for a ship.")
	m = press(t, m, "/opening The lamp flickers.")
	m = press(t, m, "/rules Speak in riddles.")
	m = press(t, m, "/note Keep it short.")

	setup := m.session.Setup()
	assert.Equal(t, "A keeper waits for a ship.", setup.World.Summary)
	assert.Equal(t, "The lamp flickers.", setup.World.Opening)
	assert.Equal(t, "Keep it short.", setup.Rules.AuthorsNote)
	assert.Contains(t, setup.Rules.AIInstructions, "Speak in riddles.")
	assert.Contains(t, setup.Rules.AIInstructions, "Content Rating:")
	assert.Equal(t, "The lamp flickers.", lastTurn(t, m).Text)

	m = press(t, m, "/setup")
	assert.Contains(t, m.notice, "Title: Lighthouse")
	assert.Contains(t, m.notice, "Note: Keep it short.")

	m = press(t, m, "/summary")
	assert.Equal(t, "Cleared the summary.", m.notice)
	assert.Empty(t, m.session.Setup().World.Summary)

	m = press(t, m, "/title   ")
	assert.Equal(t, "Usage: /title <text>", m.notice)
	assert.Equal(t, "Lighthouse", m.scenario.Title)
}

func TestConsoleUI_SetupLockedAfterFirstTurn(t *testing.T) {
	m := beginTurn(t, newTestUI(t), chat.ModeDo, "wave")

	m = press(t, m, "/title Lighthouse")
	assert.Equal(t, transcript.ErrTurnInFlight.Error(), m.notice)

	m = update(t, m, fragmentMsg{text: "A gull answers."})
	m = update(t, m, streamDoneMsg{})

	m = press(t, m, "/title Lighthouse")
	assert.Equal(t, transcript.ErrStoryStarted.Error(), m.notice)
	assert.Equal(t, "Harbor", m.scenario.Title)
	assert.Equal(t, "Harbor", m.session.Setup().World.Title)
}
