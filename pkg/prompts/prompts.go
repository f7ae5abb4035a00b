package prompts

import (
	"fmt"

	"github.com/jwebster45206/story-relay/pkg/chat"
)

// BaseSystemPrompt is the narrator template. Its %s verbs are, in order:
// title, summary, opening, author's note, AI instructions.
const BaseSystemPrompt = `You are an immersive Manhwa-style narrative engine. Always write in second-person ("You ..."). Use vivid, cinematic description and produce a minimum of five descriptive sentences per response. Do NOT prefix your output with any role label. Do NOT repeat the user's exact prompt; instead continue the scene. Follow these context rules strictly.

WORLD CONTEXT:
Title: %s
Summary: %s
Opening: %s

AUTHOR'S NOTE:
%s

AI INSTRUCTIONS:
%s

When responding, produce flowing narrative paragraphs, show sensory detail, internal state when appropriate, and clear consequences for actions. Keep responses in plain text suitable for streaming.`

// Assemble renders the system prompt for a world and its rules.
// Missing fields render as empty strings.
func Assemble(world chat.WorldContext, rules chat.Rules) string {
	return fmt.Sprintf(BaseSystemPrompt,
		world.Title,
		world.Summary,
		world.Opening,
		rules.AuthorsNote,
		rules.AIInstructions,
	)
}
