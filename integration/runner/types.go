package runner

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/story-relay/pkg/chat"
)

// Special step actions that do not call the relay
const (
	ActionReset = "reset"
	ActionUndo  = "undo"
	ActionRedo  = "redo"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name     string     `yaml:"name"`
	Scenario string     `yaml:"scenario,omitempty"` // Used for regular tests
	Steps    []TestStep `yaml:"steps,omitempty"`    // Used for regular tests
	Cases    []string   `yaml:"cases,omitempty"`    // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single test interaction and its expected outcomes.
// Exactly one of Action, RawBody or Mode drives the step.
type TestStep struct {
	Name         string       `yaml:"name,omitempty"`
	Action       string       `yaml:"action,omitempty"`   // reset, undo, redo
	RawBody      string       `yaml:"raw_body,omitempty"` // posted verbatim to /api/chat
	Mode         chat.Mode    `yaml:"mode,omitempty"`
	Input        string       `yaml:"input,omitempty"`
	Expectations Expectations `yaml:"expect"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	// Transcript checks
	TranscriptLength *int  `yaml:"transcript_length,omitempty"`
	CanRedo          *bool `yaml:"can_redo,omitempty"`
	Interrupted      *bool `yaml:"interrupted,omitempty"` // a failure marker ended the turn

	// Raw request checks
	Status      *int   `yaml:"status,omitempty"`
	ErrorString string `yaml:"error,omitempty"` // ErrorResponse.Error

	// Response Analysis
	ResponseContains    []string `yaml:"response_contains,omitempty"`
	ResponseNotContains []string `yaml:"response_not_contains,omitempty"`
	ResponseRegex       string   `yaml:"response_regex,omitempty"`
	ResponseMinLength   *int     `yaml:"response_min_length,omitempty"`
	ResponseMaxLength   *int     `yaml:"response_max_length,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
	Fragments    int
	RequestID    uuid.UUID // X-Request-ID sent with the step, for log correlation
	IsAction     bool      // reset/undo/redo steps do not count toward pass/fail metrics
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
}
