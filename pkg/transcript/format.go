package transcript

import (
	"strings"

	"github.com/jwebster45206/story-relay/pkg/chat"
)

// ContinueLabel is the display label of a continue turn. It is never
// added to the transcript.
const ContinueLabel = "Continue"

// FormatUserLine renders the user's input the way it is shown and sent.
func FormatUserLine(mode chat.Mode, input string) string {
	text := strings.TrimSpace(input)
	switch mode {
	case chat.ModeDo:
		return "You attempt: " + text
	case chat.ModeSay:
		return `You say: "` + text + `"`
	case chat.ModeThink:
		return "You think: " + text
	case chat.ModeStory:
		return "You narrate: " + text
	default:
		return ContinueLabel
	}
}
