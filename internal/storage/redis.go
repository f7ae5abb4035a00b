package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/story-relay/pkg/scenario"
)

const (
	scenarioKeyPrefix = "scenario:"
	scenarioIndexKey  = "scenarios"
)

// RedisStorage keeps the scenario library in Redis: one JSON value per
// scenario under scenario:<id> and the set of ids under "scenarios".
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStorage implements Storage interface
var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage connects to redisURL (redis:// or rediss://).
func NewRedisStorage(redisURL string, logger *slog.Logger) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisStorage{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		err := r.Ping(ctx)
		if err == nil {
			r.logger.Info("Redis connection established")
			return nil
		}
		r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("redis did not become available after %d attempts", attempts)
}

// Scenario operations

func (r *RedisStorage) SaveScenario(ctx context.Context, s *scenario.Scenario) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, scenarioKeyPrefix+s.ID, data, 0)
		pipe.SAdd(ctx, scenarioIndexKey, s.ID)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save scenario", "scenario_id", s.ID, "error", err)
		return fmt.Errorf("failed to save scenario: %w", err)
	}
	return nil
}

func (r *RedisStorage) GetScenario(ctx context.Context, id string) (*scenario.Scenario, error) {
	data, err := r.client.Get(ctx, scenarioKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrScenarioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario: %w", err)
	}

	var s scenario.Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario %q: %w", id, err)
	}
	return &s, nil
}

func (r *RedisStorage) ListScenarios(ctx context.Context) ([]scenario.Summary, error) {
	ids, err := r.client.SMembers(ctx, scenarioIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	if len(ids) == 0 {
		return []scenario.Summary{}, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = scenarioKeyPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}

	summaries := make([]scenario.Summary, 0, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// indexed id whose value is gone
			r.logger.Warn("Scenario missing from index", "scenario_id", ids[i])
			continue
		}
		var s scenario.Scenario
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			r.logger.Warn("Failed to unmarshal scenario", "scenario_id", ids[i], "error", err)
			continue
		}
		summaries = append(summaries, s.Summarize())
	}
	return summaries, nil
}
