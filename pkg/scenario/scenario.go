package scenario

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jwebster45206/story-relay/pkg/chat"
)

// Content ratings understood by the library and the console filter.
const (
	RatingG    = "G"
	RatingPG   = "PG"
	RatingPG13 = "PG13"
	RatingR    = "R"
)

// Content rating prompts appended to a scenario's AI instructions.
const ContentRatingG = `Write content suitable for young children. Avoid violence, romance and scary elements. Use simple language and positive messages.`
const ContentRatingPG = `Write content suitable for children and families. Mild peril or tension is okay, but avoid strong language, explicit violence, or dark themes.`
const ContentRatingPG13 = `Write content appropriate for teenagers. You may include mild swearing, romantic tension, action scenes, and complex emotional themes, but avoid explicit adult situations, graphic violence, or drug use.`
const ContentRatingR = `Write with full freedom for adult audiences. All content should progress the story.`

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Scenario is a library preset for a story: world, narrator rules and lore.
type Scenario struct {
	ID          string           `json:"id" yaml:"id"`
	Title       string           `json:"title" yaml:"title"`
	Description string           `json:"description" yaml:"description"` // shown in the library
	Summary     string           `json:"summary,omitempty" yaml:"summary"`
	Opening     string           `json:"opening,omitempty" yaml:"opening"`
	Rules       ScenarioRules    `json:"rules" yaml:"rules"`
	Lore        []chat.LoreEntry `json:"lore,omitempty" yaml:"lore"`
	Rating      string           `json:"rating,omitempty" yaml:"rating"`
}

// ScenarioRules mirrors chat.Rules with YAML tags for catalog files.
type ScenarioRules struct {
	AIInstructions string `json:"aiInstructions,omitempty" yaml:"ai_instructions"`
	AuthorsNote    string `json:"authorsNote,omitempty" yaml:"authors_note"`
}

// Summary is the short form returned by library listings.
type Summary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Rating      string `json:"rating,omitempty"`
}

// ValidID reports whether id is a safe library key.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Validate checks the fields the library relies on.
func (s *Scenario) Validate() error {
	if !ValidID(s.ID) {
		return fmt.Errorf("invalid scenario id %q", s.ID)
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("scenario %s: title is required", s.ID)
	}
	if s.Rating != "" && RatingPrompt(s.Rating) == "" {
		return fmt.Errorf("scenario %s: unknown rating %q", s.ID, s.Rating)
	}
	return nil
}

// Summarize returns the listing form of the scenario.
func (s *Scenario) Summarize() Summary {
	return Summary{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Rating:      s.Rating,
	}
}

// World returns the plot fields sent with each turn.
func (s *Scenario) World() chat.WorldContext {
	return chat.WorldContext{
		Title:   s.Title,
		Summary: s.Summary,
		Opening: s.Opening,
	}
}

// TurnRules returns the narrator rules sent with each turn. The rating
// guidance, if any, is appended to the AI instructions.
func (s *Scenario) TurnRules() chat.Rules {
	instructions := strings.TrimSpace(s.Rules.AIInstructions)
	if p := RatingPrompt(s.Rating); p != "" {
		if instructions != "" {
			instructions += "\n"
		}
		instructions += "Content Rating: " + NormalizeRating(s.Rating) + " (" + p + ")"
	}
	return chat.Rules{
		AIInstructions: instructions,
		AuthorsNote:    s.Rules.AuthorsNote,
	}
}

// NormalizeRating maps spellings like "pg-13" to the library constants.
func NormalizeRating(rating string) string {
	r := strings.ToUpper(strings.TrimSpace(rating))
	return strings.ReplaceAll(r, "-", "")
}

// RatingPrompt returns the narrator guidance for a rating, or "".
func RatingPrompt(rating string) string {
	switch NormalizeRating(rating) {
	case RatingG:
		return ContentRatingG
	case RatingPG:
		return ContentRatingPG
	case RatingPG13:
		return ContentRatingPG13
	case RatingR:
		return ContentRatingR
	default:
		return ""
	}
}
