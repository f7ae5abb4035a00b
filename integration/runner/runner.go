package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/story-relay/pkg/chat"
	"github.com/jwebster45206/story-relay/pkg/relayclient"
	"github.com/jwebster45206/story-relay/pkg/transcript"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running story-relay API
type Runner struct {
	BaseURL           string
	HTTPClient        *http.Client
	Client            *relayclient.Client
	Timeout           time.Duration // per step
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
	ScenarioOverride  string // If set, overrides the scenario for all test cases
}

// NewRunner creates a new test runner. eventStream selects the framing
// the relay is asked for.
func NewRunner(baseURL string, eventStream bool) *Runner {
	baseURL = strings.TrimSuffix(baseURL, "/")
	httpClient := NewHTTPClient()
	return &Runner{
		BaseURL:           baseURL,
		HTTPClient:        httpClient,
		Client:            relayclient.New(baseURL, relayclient.WithHTTPClient(httpClient), relayclient.WithEventStream(eventStream)),
		Timeout:           60 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a YAML file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite on a fresh session
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	scenarioID := suite.Scenario
	if r.ScenarioOverride != "" {
		scenarioID = r.ScenarioOverride
	}
	setup, err := r.loadSetup(ctx, scenarioID)
	if err != nil {
		result.Error = fmt.Errorf("failed to load scenario: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}

	session := transcript.NewSession(setup)
	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)

		if step.Action == ActionReset {
			session = transcript.NewSession(setup)
		}
		stepResult := r.runStep(ctx, session, step)
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// loadSetup fetches a library scenario, or returns an empty setup when
// no scenario is named.
func (r *Runner) loadSetup(ctx context.Context, id string) (transcript.Setup, error) {
	if id == "" {
		return transcript.Setup{}, nil
	}
	sc, err := r.Client.GetScenario(ctx, id)
	if err != nil {
		return transcript.Setup{}, err
	}
	return transcript.Setup{World: sc.World(), Rules: sc.TurnRules(), Lore: sc.Lore}, nil
}

// runStep executes a single test step and checks expectations.
// Will retry once on step timeouts without backoff.
func (r *Runner) runStep(ctx context.Context, session *transcript.Session, step TestStep) TestResult {
	for attempt := 1; attempt <= 2; attempt++ {
		result, timedOut := r.executeStep(ctx, session, step)
		if !timedOut || attempt == 2 || step.Mode == chat.ModeContinue {
			return result
		}
		r.Logger("    Timeout detected, retrying step: %s", step.Name)
		// drop the interrupted exchange before retrying
		if err := session.Undo(); err != nil {
			return result
		}
	}
	return TestResult{StepName: step.Name, Error: fmt.Errorf("unexpected error in retry logic")}
}

// executeStep performs the actual step execution. It reports whether the
// step ran out of time.
func (r *Runner) executeStep(ctx context.Context, session *transcript.Session, step TestStep) (TestResult, bool) {
	start := time.Now()
	result := TestResult{
		StepName:  step.Name,
		RequestID: uuid.New(),
	}
	ctx = WithRequestID(ctx, result.RequestID)

	finish := func(err error) (TestResult, bool) {
		result.Error = err
		result.Success = err == nil
		result.Duration = time.Since(start)
		return result, false
	}

	switch {
	case step.Action != "":
		result.IsAction = true
		var err error
		switch step.Action {
		case ActionReset:
			// the caller already replaced the session
		case ActionUndo:
			err = session.Undo()
		case ActionRedo:
			err = session.Redo()
		default:
			err = fmt.Errorf("unknown action %q", step.Action)
		}
		if err != nil {
			return finish(err)
		}
		return finish(checkExpectations(step.Expectations, outcome{session: session}))

	case step.RawBody != "":
		stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		defer cancel()
		status, errResp, err := PostRawChat(stepCtx, r.HTTPClient, r.BaseURL, step.RawBody)
		if err != nil {
			return finish(err)
		}
		return finish(checkExpectations(step.Expectations, outcome{session: session, status: status, errResp: errResp}))
	}

	req, err := session.Submit(step.Mode, step.Input)
	if err != nil {
		return finish(fmt.Errorf("submit rejected: %w", err))
	}

	out := outcome{session: session}
	if req != nil {
		stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		defer cancel()

		streamErr := r.Client.Stream(stepCtx, *req, func(text string) {
			session.ApplyFragment(text)
			result.Fragments++
		})
		session.Finish(streamErr)
		out.streamErr = streamErr

		if last, ok := session.Transcript().Last(); ok && last.Role == transcript.RoleAssistant {
			out.response = last.Text
			result.ResponseText = last.Text
		}
		if errors.Is(streamErr, context.DeadlineExceeded) {
			result.Error = fmt.Errorf("timeout waiting for narrator after %v", r.Timeout)
			result.Duration = time.Since(start)
			return result, true
		}
	}

	return finish(checkExpectations(step.Expectations, out))
}

// outcome is everything a step's expectations can be checked against.
type outcome struct {
	session   *transcript.Session
	response  string
	streamErr error
	status    int
	errResp   *relayclient.ErrorResponse
}

// checkExpectations validates the test expectations against a step outcome
func checkExpectations(exp Expectations, out outcome) error {
	interrupted := out.streamErr != nil
	if exp.Interrupted != nil {
		if interrupted != *exp.Interrupted {
			return fmt.Errorf("expected interrupted=%t, got %t (stream error: %v)", *exp.Interrupted, interrupted, out.streamErr)
		}
	} else if interrupted {
		return fmt.Errorf("stream failed: %w", out.streamErr)
	}

	if exp.TranscriptLength != nil {
		if n := len(out.session.Transcript()); n != *exp.TranscriptLength {
			return fmt.Errorf("expected transcript length %d, got %d", *exp.TranscriptLength, n)
		}
	}

	if exp.CanRedo != nil {
		if out.session.CanRedo() != *exp.CanRedo {
			return fmt.Errorf("expected can_redo to be %t, got %t", *exp.CanRedo, out.session.CanRedo())
		}
	}

	if exp.Status != nil {
		if out.status != *exp.Status {
			return fmt.Errorf("expected status %d, got %d", *exp.Status, out.status)
		}
	}

	if exp.ErrorString != "" {
		if out.errResp == nil {
			return fmt.Errorf("expected error %q, got none", exp.ErrorString)
		}
		if out.errResp.Error != exp.ErrorString {
			return fmt.Errorf("expected error %q, got %q", exp.ErrorString, out.errResp.Error)
		}
	}

	// Response content checks
	if len(exp.ResponseContains) > 0 {
		lowerResponse := strings.ToLower(out.response)
		for _, expectedText := range exp.ResponseContains {
			if !strings.Contains(lowerResponse, strings.ToLower(expectedText)) {
				return fmt.Errorf("expected response to contain '%s', but it didn't", expectedText)
			}
		}
	}

	if len(exp.ResponseNotContains) > 0 {
		lowerResponse := strings.ToLower(out.response)
		for _, unexpectedText := range exp.ResponseNotContains {
			if strings.Contains(lowerResponse, strings.ToLower(unexpectedText)) {
				return fmt.Errorf("expected response to NOT contain '%s', but it did", unexpectedText)
			}
		}
	}

	if exp.ResponseRegex != "" {
		matched, err := regexp.MatchString(exp.ResponseRegex, out.response)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("response didn't match regex pattern: %s", exp.ResponseRegex)
		}
	}

	if exp.ResponseMinLength != nil {
		if len(out.response) < *exp.ResponseMinLength {
			return fmt.Errorf("expected response length >= %d, got %d", *exp.ResponseMinLength, len(out.response))
		}
	}
	if exp.ResponseMaxLength != nil {
		if len(out.response) > *exp.ResponseMaxLength {
			return fmt.Errorf("expected response length <= %d, got %d", *exp.ResponseMaxLength, len(out.response))
		}
	}

	return nil
}
