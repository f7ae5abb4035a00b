package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwebster45206/story-relay/pkg/scenario"
)

// ErrScenarioNotFound is returned by GetScenario for an unknown id.
var ErrScenarioNotFound = errors.New("scenario not found")

// Storage is the scenario library.
type Storage interface {
	// Ping tests the backend connection
	Ping(ctx context.Context) error
	// Close releases the backend connection
	Close() error

	// ListScenarios returns summaries of every scenario, sorted by id.
	ListScenarios(ctx context.Context) ([]scenario.Summary, error)
	// GetScenario returns ErrScenarioNotFound for an unknown id.
	GetScenario(ctx context.Context, id string) (*scenario.Scenario, error)
	// SaveScenario creates or replaces a scenario.
	SaveScenario(ctx context.Context, s *scenario.Scenario) error
}

// Seed saves each scenario into s.
func Seed(ctx context.Context, s Storage, scenarios []*scenario.Scenario) error {
	for _, sc := range scenarios {
		if err := s.SaveScenario(ctx, sc); err != nil {
			return fmt.Errorf("failed to seed scenario %q: %w", sc.ID, err)
		}
	}
	return nil
}
