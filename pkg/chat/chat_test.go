package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     TurnRequest
		wantErr error
	}{
		{name: "missing mode", req: TurnRequest{Message: "hello"}, wantErr: ErrModeRequired},
		{name: "unknown mode", req: TurnRequest{Mode: "dance", Message: "hello"}, wantErr: ErrInvalidMode},
		{name: "do without message", req: TurnRequest{Mode: ModeDo}, wantErr: ErrInputRequired},
		{name: "say with blank message", req: TurnRequest{Mode: ModeSay, Message: "  \t\n"}, wantErr: ErrInputRequired},
		{name: "erase without message", req: TurnRequest{Mode: ModeErase}, wantErr: ErrInputRequired},
		{name: "continue without message", req: TurnRequest{Mode: ModeContinue}},
		{name: "continue with message", req: TurnRequest{Mode: ModeContinue, Message: "ignored"}},
		{name: "story with message", req: TurnRequest{Mode: ModeStory, Message: "You narrate: rain falls"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTurnRequest_DecodeDefaults(t *testing.T) {
	var req TurnRequest
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"say","message":"Hello","plot":{"title":"T"},"rules":{}}`), &req))

	assert.Equal(t, ModeSay, req.Mode)
	assert.Equal(t, "T", req.Plot.Title)
	assert.Empty(t, req.Plot.Summary)
	assert.Empty(t, req.Rules.AuthorsNote)
	assert.Nil(t, req.Lore)
}

func TestMode_Valid(t *testing.T) {
	for _, m := range Modes {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, Mode("DO").Valid())
	assert.False(t, Mode("").Valid())
}
