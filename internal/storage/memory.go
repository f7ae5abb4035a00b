package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/jwebster45206/story-relay/pkg/scenario"
)

// MemoryStorage is an in-process scenario library. It is used when no
// Redis URL is configured, and by tests.
type MemoryStorage struct {
	mu        sync.RWMutex
	scenarios map[string]*scenario.Scenario
	pingError error
}

// Ensure MemoryStorage implements Storage interface
var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		scenarios: make(map[string]*scenario.Scenario),
	}
}

// SetPingError makes Ping fail with err; nil restores success.
func (m *MemoryStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) SaveScenario(ctx context.Context, s *scenario.Scenario) error {
	if err := s.Validate(); err != nil {
		return err
	}
	cp := *s
	cp.Lore = append(cp.Lore[:0:0], s.Lore...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenarios[s.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetScenario(ctx context.Context, id string) (*scenario.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scenarios[id]
	if !ok {
		return nil, ErrScenarioNotFound
	}
	cp := *s
	cp.Lore = append(cp.Lore[:0:0], s.Lore...)
	return &cp, nil
}

func (m *MemoryStorage) ListScenarios(ctx context.Context) ([]scenario.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]scenario.Summary, 0, len(m.scenarios))
	for _, s := range m.scenarios {
		out = append(out, s.Summarize())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
