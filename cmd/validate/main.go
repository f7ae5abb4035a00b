package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/story-relay/pkg/scenario"
	"github.com/jwebster45206/story-relay/pkg/textfilter"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <scenario.yaml> [more.yaml...]\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	for _, filename := range os.Args[1:] {
		validator := &ScenarioValidator{}
		if err := validator.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
			continue
		}
		for _, w := range validator.warnings {
			fmt.Println(w)
		}
	}
	if failed {
		os.Exit(1)
	}

	fmt.Println("Scenario files are valid!")
}

// ScenarioValidator checks a catalog file beyond what the loader enforces.
type ScenarioValidator struct {
	errors   []string
	warnings []string
}

func (v *ScenarioValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, ".yaml") {
		return fmt.Errorf("scenario file must have .yaml extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, ".yaml")
	if !isValidScenarioFilename(nameWithoutExt) {
		return fmt.Errorf("scenario filename '%s' must be lowercase snake_case (e.g., my_scenario.yaml, not My-Scenario.yaml)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	v.errors = nil
	v.warnings = nil

	var s scenario.Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("file %s is empty", filename)
		}
		return fmt.Errorf("file %s failed strict YAML unmarshaling: %w", filename, err)
	}

	if err := s.Validate(); err != nil {
		v.addError(err.Error())
	}
	if s.ID != "" && s.ID != strings.TrimPrefix(nameWithoutExt, "x.") {
		v.addWarning(fmt.Sprintf("id '%s' does not match filename '%s'", s.ID, baseName))
	}
	v.validateScenario(&s)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}

	return nil
}

func (v *ScenarioValidator) validateScenario(s *scenario.Scenario) {
	if strings.TrimSpace(s.Description) == "" {
		v.addError("description is required for the library listing")
	}
	if s.Summary == "" && s.Opening == "" {
		v.addWarning("neither summary nor opening is set; the story starts from a blank page")
	}

	seen := make(map[string]bool, len(s.Lore))
	for i, entry := range s.Lore {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			v.addError(fmt.Sprintf("lore entry %d has an empty key", i))
			continue
		}
		if strings.TrimSpace(entry.Value) == "" {
			v.addError(fmt.Sprintf("lore entry '%s' has an empty value", key))
		}
		if seen[strings.ToLower(key)] {
			v.addError(fmt.Sprintf("lore key '%s' is repeated", key))
		}
		seen[strings.ToLower(key)] = true
	}

	v.validateRatedText(s)
}

// validateRatedText flags family-rated scenarios whose own text would be
// softened by the console filter.
func (v *ScenarioValidator) validateRatedText(s *scenario.Scenario) {
	if !textfilter.Applies(s.Rating) {
		return
	}
	filter := textfilter.ForRating(s.Rating)

	fields := map[string]string{
		"title":           s.Title,
		"description":     s.Description,
		"summary":         s.Summary,
		"opening":         s.Opening,
		"ai_instructions": s.Rules.AIInstructions,
		"authors_note":    s.Rules.AuthorsNote,
	}
	for name, text := range fields {
		if filter.Contains(text) {
			v.addError(fmt.Sprintf("%s contains language above the %s rating", name, s.Rating))
		}
	}
	for _, entry := range s.Lore {
		if filter.Contains(entry.Value) {
			v.addError(fmt.Sprintf("lore '%s' contains language above the %s rating", entry.Key, s.Rating))
		}
	}
}

func (v *ScenarioValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

func (v *ScenarioValidator) addWarning(msg string) {
	v.warnings = append(v.warnings, "  warning: "+msg)
}

var validFilenameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

func isValidScenarioFilename(name string) bool {
	// Allow 'x.' prefix for experimental scenarios
	name = strings.TrimPrefix(name, "x.")
	return validFilenameRegex.MatchString(name)
}
