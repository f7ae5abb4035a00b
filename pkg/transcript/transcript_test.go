package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwebster45206/story-relay/pkg/chat"
)

func TestOpening(t *testing.T) {
	t.Run("full world", func(t *testing.T) {
		got := Opening(chat.WorldContext{Title: "Harbor", Summary: "A port town.", Opening: "Fog rolls in."})
		assert.Equal(t, Transcript{
			{Role: RoleAssistant, Text: "World — Harbor"},
			{Role: RoleAssistant, Text: "A port town."},
			{Role: RoleAssistant, Text: "Fog rolls in."},
		}, got)
	})
	t.Run("empty world", func(t *testing.T) {
		assert.Equal(t, Transcript{{Role: RoleAssistant, Text: NewGameText}}, Opening(chat.WorldContext{}))
	})
	t.Run("opening only", func(t *testing.T) {
		assert.Equal(t, Transcript{{Role: RoleAssistant, Text: "Dawn."}}, Opening(chat.WorldContext{Opening: "Dawn."}))
	})
}

func TestTranscript_AppendDoesNotAlias(t *testing.T) {
	base := make(Transcript, 1, 4)
	base[0] = Turn{Role: RoleUser, Text: "a"}

	one := base.Append(Turn{Role: RoleAssistant, Text: "b"})
	two := base.Append(Turn{Role: RoleAssistant, Text: "c"})

	assert.Equal(t, "b", one[1].Text)
	assert.Equal(t, "c", two[1].Text)
	assert.Len(t, base, 1)
}

func TestTranscript_ReplaceLast(t *testing.T) {
	orig := Transcript{{Role: RoleUser, Text: "a"}, {Role: RoleAssistant, Text: "b"}}
	got := orig.ReplaceLast(Turn{Role: RoleAssistant, Text: "bb"})

	assert.Equal(t, "bb", got[1].Text)
	assert.Equal(t, "b", orig[1].Text)

	assert.Equal(t, Transcript{{Role: RoleAssistant, Text: "x"}}, Transcript(nil).ReplaceLast(Turn{Role: RoleAssistant, Text: "x"}))
}

func TestTranscript_TrimLastPair(t *testing.T) {
	user := Turn{Role: RoleUser, Text: "You say: \"hi\""}
	reply := Turn{Role: RoleAssistant, Text: "Hello."}
	intro := Turn{Role: RoleAssistant, Text: "Intro"}

	tests := []struct {
		name    string
		in      Transcript
		want    Transcript
		removed []Turn
	}{
		{name: "user and assistant", in: Transcript{intro, user, reply}, want: Transcript{intro}, removed: []Turn{user, reply}},
		{name: "trailing user only", in: Transcript{intro, user}, want: Transcript{intro}, removed: []Turn{user}},
		{name: "two assistants", in: Transcript{intro, reply}, want: Transcript{intro}, removed: []Turn{reply}},
		{name: "lone assistant", in: Transcript{intro}, want: Transcript{}, removed: []Turn{intro}},
		{name: "empty", in: Transcript{}, want: Transcript{}, removed: []Turn{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, removed := tt.in.TrimLastPair()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.removed, removed)
		})
	}
}

func TestFormatUserLine(t *testing.T) {
	tests := []struct {
		mode  chat.Mode
		input string
		want  string
	}{
		{chat.ModeDo, "  open the door ", "You attempt: open the door"},
		{chat.ModeSay, "hello", `You say: "hello"`},
		{chat.ModeThink, "odd", "You think: odd"},
		{chat.ModeStory, "The wind howls.", "You narrate: The wind howls."},
		{chat.ModeContinue, "ignored", ContinueLabel},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserLine(tt.mode, tt.input))
		})
	}
}
