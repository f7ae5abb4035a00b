package runner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/story-relay/internal/handlers"
	"github.com/jwebster45206/story-relay/internal/logger"
	"github.com/jwebster45206/story-relay/internal/middleware"
	"github.com/jwebster45206/story-relay/internal/services"
	"github.com/jwebster45206/story-relay/internal/storage"
	"github.com/jwebster45206/story-relay/pkg/chat"
	"github.com/jwebster45206/story-relay/pkg/scenario"
	"github.com/jwebster45206/story-relay/pkg/transcript"
)

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

// newRelay serves the relay and scenario library backed by a mock model.
func newRelay(t *testing.T, seen func(id string)) *httptest.Server {
	t.Helper()
	log := logger.Discard()

	store := storage.NewMemoryStorage()
	builtin, err := scenario.Builtin()
	require.NoError(t, err)
	require.NoError(t, storage.Seed(context.Background(), store, builtin))

	mux := http.NewServeMux()
	mux.Handle("/api/chat", handlers.NewRelayHandler(services.NewMockLLM("A gull ", "answers."), log))
	scenarios := handlers.NewScenarioHandler(log, store)
	mux.Handle("/v1/scenarios", scenarios)
	mux.Handle("/v1/scenarios/", scenarios)

	var root http.Handler = middleware.Logger(log, mux)
	if seen != nil {
		inner := root
		root = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen(r.Header.Get(middleware.RequestIDHeader))
			inner.ServeHTTP(w, r)
		})
	}

	srv := httptest.NewServer(root)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadTestSuiteWithExpansion(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("one.yaml", "name: one\nsteps:\n  - mode: do\n    input: look\n")
	write("two.yaml", "name: two\nscenario: sea\nsteps:\n  - action: undo\n")
	write("all.yaml", "name: all\ncases: [one.yaml, two.yaml]\n")

	jobs, err := LoadTestSuiteWithExpansion(filepath.Join(dir, "all.yaml"), dir)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "one", jobs[0].Name)
	assert.Equal(t, chat.ModeDo, jobs[0].Suite.Steps[0].Mode)
	assert.Equal(t, "sea", jobs[1].Suite.Scenario)
	assert.Equal(t, ActionUndo, jobs[1].Suite.Steps[0].Action)

	write("broken.yaml", "name: broken\ncases: [missing.yaml]\n")
	_, err = LoadTestSuiteWithExpansion(filepath.Join(dir, "broken.yaml"), dir)
	assert.Error(t, err)
}

func relaySuite() TestSuite {
	return TestSuite{
		Name:     "relay round trip",
		Scenario: "sea",
		Steps: []TestStep{
			{
				Name: "act", Mode: chat.ModeDo, Input: "wave at the gulls",
				Expectations: Expectations{
					TranscriptLength: intPtr(5),
					ResponseContains: []string{"gull"},
					ResponseRegex:    `answers\.$`,
				},
			},
			{Name: "undo", Action: ActionUndo, Expectations: Expectations{TranscriptLength: intPtr(3), CanRedo: boolPtr(true)}},
			{Name: "redo", Action: ActionRedo, Expectations: Expectations{TranscriptLength: intPtr(5), CanRedo: boolPtr(false)}},
			{Name: "continue", Mode: chat.ModeContinue, Expectations: Expectations{TranscriptLength: intPtr(6), ResponseMinLength: intPtr(5)}},
			{Name: "erase", Mode: chat.ModeErase, Expectations: Expectations{TranscriptLength: intPtr(5)}},
			{
				Name: "missing mode", RawBody: `{"message":"hi"}`,
				Expectations: Expectations{Status: intPtr(http.StatusBadRequest), ErrorString: "mode required"},
			},
			{
				Name: "blank say", RawBody: `{"mode":"say","message":"   "}`,
				Expectations: Expectations{Status: intPtr(http.StatusBadRequest), ErrorString: "Input required"},
			},
			{Name: "reset", Action: ActionReset, Expectations: Expectations{TranscriptLength: intPtr(3)}},
		},
	}
}

func TestRunSuite_AgainstRelay(t *testing.T) {
	srv := newRelay(t, nil)

	for _, eventStream := range []bool{true, false} {
		r := NewRunner(srv.URL, eventStream)
		r.ErrorHandlingMode = ErrorHandlingExit

		result, err := r.RunSuite(context.Background(), relaySuite())
		require.NoError(t, err, "eventStream=%t", eventStream)
		require.Len(t, result.Results, 8)
		assert.Equal(t, "A gull answers.", result.Results[0].ResponseText)
		if eventStream {
			assert.Equal(t, 2, result.Results[0].Fragments)
		} else {
			// raw reads may merge or split chunks
			assert.GreaterOrEqual(t, result.Results[0].Fragments, 1)
		}
		assert.True(t, result.Results[1].IsAction)
		for _, step := range result.Results {
			assert.True(t, step.Success, step.StepName)
		}
	}
}

func TestRunSuite_ContinueModeCollectsFailures(t *testing.T) {
	srv := newRelay(t, nil)
	r := NewRunner(srv.URL, true)

	suite := TestSuite{
		Name: "failing",
		Steps: []TestStep{
			{Name: "dragon", Mode: chat.ModeDo, Input: "look", Expectations: Expectations{ResponseContains: []string{"dragon"}}},
			{Name: "no gulls", Mode: chat.ModeSay, Input: "hello", Expectations: Expectations{ResponseNotContains: []string{"GULL"}}},
			{Name: "fine", Mode: chat.ModeThink, Input: "hmm"},
		},
	}
	result, err := r.RunSuite(context.Background(), suite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0 (dragon)")
	require.Len(t, result.Results, 3)
	assert.False(t, result.Results[0].Success)
	assert.False(t, result.Results[1].Success)
	assert.True(t, result.Results[2].Success)

	r.ErrorHandlingMode = ErrorHandlingExit
	result, err = r.RunSuite(context.Background(), suite)
	require.Error(t, err)
	assert.Len(t, result.Results, 1)
}

func TestRunSuite_UnknownScenario(t *testing.T) {
	srv := newRelay(t, nil)
	r := NewRunner(srv.URL, true)
	r.ScenarioOverride = "atlantis"

	_, err := r.RunSuite(context.Background(), relaySuite())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRunSuite_ForwardsRequestIDs(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	srv := newRelay(t, func(id string) {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, id)
	})

	r := NewRunner(srv.URL, true)
	result, err := r.RunSuite(context.Background(), TestSuite{
		Name:  "ids",
		Steps: []TestStep{{Name: "act", Mode: chat.ModeDo, Input: "look"}},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ids, 1)
	assert.Equal(t, result.Results[0].RequestID.String(), ids[0])
	_, parseErr := uuid.Parse(ids[0])
	assert.NoError(t, parseErr)
}

func TestCheckExpectations_Interrupted(t *testing.T) {
	session := transcript.NewSession(transcript.Setup{})
	streamErr := errors.New("relay stream ended early")

	assert.Error(t, checkExpectations(Expectations{}, outcome{session: session, streamErr: streamErr}))
	assert.NoError(t, checkExpectations(Expectations{Interrupted: boolPtr(true)}, outcome{session: session, streamErr: streamErr}))
	assert.Error(t, checkExpectations(Expectations{Interrupted: boolPtr(true)}, outcome{session: session}))
}

func TestCheckExpectations_ResponseBounds(t *testing.T) {
	out := outcome{session: transcript.NewSession(transcript.Setup{}), response: "The tide turns."}

	assert.NoError(t, checkExpectations(Expectations{ResponseMinLength: intPtr(3), ResponseMaxLength: intPtr(40)}, out))
	assert.Error(t, checkExpectations(Expectations{ResponseMaxLength: intPtr(3)}, out))
	assert.Error(t, checkExpectations(Expectations{ResponseRegex: "("}, out))
	assert.Error(t, checkExpectations(Expectations{ErrorString: "mode required"}, out))
}
