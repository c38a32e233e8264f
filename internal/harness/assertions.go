package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/engine"
)

// AssertionContext provides what assertions inspect.
type AssertionContext struct {
	Ctx     context.Context
	Harness *Harness
	Result  *Result
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	h := actx.Harness
	switch a.Type {
	case AssertState:
		return assertState(h.engine.State(), a)

	case AssertBuffer:
		rec, ok := h.engine.Record(a.RollNo)
		if !ok {
			return &AssertionError{Type: a.Type, Expected: "record for " + a.RollNo, Actual: "not on the active day"}
		}
		if a.Pending != nil {
			pending := slices.Contains(h.engine.Pending(), a.RollNo)
			if pending != *a.Pending {
				return &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("%s pending=%t", a.RollNo, *a.Pending),
					Actual:   fmt.Sprintf("pending=%t", pending),
				}
			}
		}
		return matchRecord(a, rec)

	case AssertStored:
		rec, ok := actx.Result.Records[a.RollNo]
		if a.Missing {
			if ok {
				return &AssertionError{Type: a.Type, Expected: a.RollNo + " missing", Actual: describe(rec)}
			}
			return nil
		}
		if !ok {
			return &AssertionError{Type: a.Type, Expected: "stored record for " + a.RollNo, Actual: "missing"}
		}
		return matchRecord(a, rec)

	case AssertCommits:
		got := h.store.commitsBy(Writer)
		if got != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d commits by %s", a.Count, Writer),
				Actual:   fmt.Sprintf("%d", got),
			}
		}
		return nil

	case AssertReportContains:
		if !strings.Contains(actx.Result.Report, a.Text) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("report containing %q", a.Text), Actual: actx.Result.Report}
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertState(got engine.SaveState, a Assertion) error {
	if string(got) != a.State {
		return &AssertionError{Type: a.Type, Expected: a.State, Actual: string(got)}
	}
	return nil
}

// matchRecord checks the fields named in a.Expect (subset match).
func matchRecord(a Assertion, r attendance.Record) error {
	fields := recordFields(r)
	var mismatches []string
	for _, k := range sortedKeys(a.Expect) {
		if fields[k] != a.Expect[k] {
			mismatches = append(mismatches, fmt.Sprintf("%s=%q (want %q)", k, fields[k], a.Expect[k]))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s with %v", a.RollNo, a.Expect),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

func recordFields(r attendance.Record) map[string]string {
	return map[string]string{
		"status":  string(r.Status),
		"od_type": string(r.ODType),
		"source":  string(r.Source),
		"name":    r.Name,
	}
}

// describe renders a record as "S1 od/internal manual".
func describe(r attendance.Record) string {
	status := string(r.Status)
	if r.ODType != attendance.ODNone {
		status += "/" + string(r.ODType)
	}
	return fmt.Sprintf("%s %s %s", r.RollNo, status, r.Source)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
