package scenario

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var builtin embed.FS

// Parse decodes and validates a single YAML scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadCatalog reads every *.yaml scenario in dir of fsys, sorted by id.
// Duplicate ids are an error.
func LoadCatalog(fsys fs.FS, dir string) ([]*Scenario, error) {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}

	seen := make(map[string]string, len(matches))
	scenarios := make([]*Scenario, 0, len(matches))
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		s, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if prev, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("duplicate scenario id %q in %s and %s", s.ID, prev, name)
		}
		seen[s.ID] = name
		scenarios = append(scenarios, s)
	}

	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })
	return scenarios, nil
}

// Builtin returns the scenarios shipped with the binary.
func Builtin() ([]*Scenario, error) {
	return LoadCatalog(builtin, "data")
}
