package prompts

import (
	"github.com/jwebster45206/story-relay/pkg/chat"
)

// Builder constructs the two-message exchange sent upstream for one turn.
type Builder struct {
	world       chat.WorldContext
	rules       chat.Rules
	lore        []chat.LoreEntry
	userMessage string
}

// New creates an empty prompt builder.
func New() *Builder {
	return &Builder{}
}

// FromTurn copies the world, rules, lore and message of a turn request.
func FromTurn(req chat.TurnRequest) *Builder {
	return New().
		WithWorld(req.Plot).
		WithRules(req.Rules).
		WithLore(req.Lore).
		WithUserMessage(req.Message)
}

// WithWorld sets the world context.
func (b *Builder) WithWorld(world chat.WorldContext) *Builder {
	b.world = world
	return b
}

// WithRules sets the narrator rules.
func (b *Builder) WithRules(rules chat.Rules) *Builder {
	b.rules = rules
	return b
}

// WithLore sets lorebook entries to inject after the template.
func (b *Builder) WithLore(entries []chat.LoreEntry) *Builder {
	b.lore = entries
	return b
}

// WithUserMessage sets the user's message. Continue turns pass "".
func (b *Builder) WithUserMessage(message string) *Builder {
	b.userMessage = message
	return b
}

// SystemPrompt returns the system instruction for the current settings.
func (b *Builder) SystemPrompt() string {
	return InjectLore(Assemble(b.world, b.rules), b.lore)
}

// Build returns [system, user]. The user message is always present, even
// when empty.
func (b *Builder) Build() []chat.ChatMessage {
	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: b.SystemPrompt()},
		{Role: chat.ChatRoleUser, Content: b.userMessage},
	}
}

// BuildMessages is shorthand for FromTurn(req).Build().
func BuildMessages(req chat.TurnRequest) []chat.ChatMessage {
	return FromTurn(req).Build()
}
