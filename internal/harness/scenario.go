package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/roster"
)

// Scenario is one scripted attendance session with expectations about
// where it ends up.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	ClassLabel string `yaml:"class_label"`

	// Operator defaults to an admin with id "operator".
	Operator *OperatorSpec `yaml:"operator,omitempty"`

	// Debounce overrides the engine's debounce delay (e.g. "1500ms").
	Debounce string `yaml:"debounce,omitempty"`

	// ConflictPolicy is "remote-wins" (default) or "local-wins".
	ConflictPolicy string `yaml:"conflict_policy,omitempty"`

	Roster []roster.Student `yaml:"roster"`

	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	// Supported types: state, buffer, stored, commits, report_contains
	Assertions []Assertion `yaml:"assertions"`
}

// OperatorSpec names the operator driving the engine.
type OperatorSpec struct {
	ID    string `yaml:"id"`
	Admin bool   `yaml:"admin"`
}

// Step is one action. Exactly one of the action fields is set.
type Step struct {
	// Open activates a date.
	Open string `yaml:"open,omitempty"`

	// Set edits one student through the engine.
	Set *SetStep `yaml:"set,omitempty"`

	// Advance moves the fake clock, firing due debounce timers.
	Advance string `yaml:"advance,omitempty"`

	// Flush persists pending edits immediately.
	Flush bool `yaml:"flush,omitempty"`

	// Detect writes a camera detection straight to the store.
	Detect string `yaml:"detect,omitempty"`

	// Remove deletes a stored record, producing a tombstone on the feed.
	Remove string `yaml:"remove,omitempty"`

	// FailCommits makes the next n store commits fail.
	FailCommits int `yaml:"fail_commits,omitempty"`

	// Await waits until the engine reaches the named save state.
	Await string `yaml:"await,omitempty"`

	// ExpectError is the error code the step must fail with (open, set
	// and flush only). Without it, a failing step fails the scenario.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// SetStep is the payload of a set step.
type SetStep struct {
	RollNo string `yaml:"roll_no"`
	Status string `yaml:"status"`
	ODType string `yaml:"od_type,omitempty"`
}

// Step kinds.
const (
	StepOpen        = "open"
	StepSet         = "set"
	StepAdvance     = "advance"
	StepFlush       = "flush"
	StepDetect      = "detect"
	StepRemove      = "remove"
	StepFailCommits = "fail_commits"
	StepAwait       = "await"
)

// Kind names the action this step performs, or "" when none or several
// are set.
func (s Step) Kind() string {
	var kinds []string
	if s.Open != "" {
		kinds = append(kinds, StepOpen)
	}
	if s.Set != nil {
		kinds = append(kinds, StepSet)
	}
	if s.Advance != "" {
		kinds = append(kinds, StepAdvance)
	}
	if s.Flush {
		kinds = append(kinds, StepFlush)
	}
	if s.Detect != "" {
		kinds = append(kinds, StepDetect)
	}
	if s.Remove != "" {
		kinds = append(kinds, StepRemove)
	}
	if s.FailCommits != 0 {
		kinds = append(kinds, StepFailCommits)
	}
	if s.Await != "" {
		kinds = append(kinds, StepAwait)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Assertion checks the final state of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "state": the engine's save state equals State
	// - "buffer": the engine's visible record for RollNo matches Expect
	// - "stored": the stored record for RollNo matches Expect
	// - "commits": the engine wrote exactly Count successful batches
	// - "report_contains": the rendered report contains Text
	Type string `yaml:"type"`

	State string `yaml:"state,omitempty"`

	RollNo string `yaml:"roll_no,omitempty"`

	// Expect holds field values to match (subset): status, od_type,
	// source, name.
	Expect map[string]string `yaml:"expect,omitempty"`

	// Missing asserts that no stored record exists (stored only).
	Missing bool `yaml:"missing,omitempty"`

	// Pending asserts whether the key has an unflushed edit (buffer only).
	Pending *bool `yaml:"pending,omitempty"`

	Count int `yaml:"count,omitempty"`

	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertState          = "state"
	AssertBuffer         = "buffer"
	AssertStored         = "stored"
	AssertCommits        = "commits"
	AssertReportContains = "report_contains"
)

var expectFields = map[string]bool{"status": true, "od_type": true, "source": true, "name": true}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.ClassLabel == "" {
		return fmt.Errorf("class_label is required")
	}
	if _, err := roster.New(s.Roster); err != nil {
		return fmt.Errorf("roster: %w", err)
	}
	if s.Debounce != "" {
		if d, err := time.ParseDuration(s.Debounce); err != nil || d <= 0 {
			return fmt.Errorf("debounce %q must be a positive duration", s.Debounce)
		}
	}
	if _, err := engine.ParseConflictPolicy(s.ConflictPolicy); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	kind := step.Kind()
	switch kind {
	case "":
		return fmt.Errorf("steps[%d]: exactly one action is required", i)
	case StepOpen:
		if _, err := attendance.ParseDate(step.Open); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	case StepSet:
		if step.Set.RollNo == "" {
			return fmt.Errorf("steps[%d]: set.roll_no is required", i)
		}
		if step.Set.Status == "" {
			return fmt.Errorf("steps[%d]: set.status is required", i)
		}
	case StepAdvance:
		if d, err := time.ParseDuration(step.Advance); err != nil || d <= 0 {
			return fmt.Errorf("steps[%d]: advance %q must be a positive duration", i, step.Advance)
		}
	case StepFailCommits:
		if step.FailCommits < 0 {
			return fmt.Errorf("steps[%d]: fail_commits must be positive", i)
		}
	case StepAwait:
		if !validState(step.Await) {
			return fmt.Errorf("steps[%d]: unknown save state %q", i, step.Await)
		}
	}
	if step.ExpectError != "" && kind != StepOpen && kind != StepSet && kind != StepFlush {
		return fmt.Errorf("steps[%d]: expect_error is only valid on open, set and flush", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertState:
		if !validState(a.State) {
			return fmt.Errorf("assertions[%d]: unknown save state %q", index, a.State)
		}
	case AssertBuffer, AssertStored:
		if a.RollNo == "" {
			return fmt.Errorf("assertions[%d]: roll_no is required for %s", index, a.Type)
		}
		if len(a.Expect) == 0 && !a.Missing && a.Pending == nil {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
		if a.Missing && a.Type != AssertStored {
			return fmt.Errorf("assertions[%d]: missing is only valid for stored", index)
		}
		if a.Pending != nil && a.Type != AssertBuffer {
			return fmt.Errorf("assertions[%d]: pending is only valid for buffer", index)
		}
		for k := range a.Expect {
			if !expectFields[k] {
				return fmt.Errorf("assertions[%d]: unknown expect field %q", index, k)
			}
		}
	case AssertCommits:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for commits", index)
		}
	case AssertReportContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for report_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func validState(s string) bool {
	switch engine.SaveState(s) {
	case engine.StateIdle, engine.StateDirty, engine.StateSaving, engine.StateSaved, engine.StateError:
		return true
	}
	return false
}
