package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rollcall/internal/canon"
)

// Snapshot captures the observable outcome of a scenario: the save-state
// transitions and the stored records, in roster order.
type Snapshot struct {
	ScenarioName string
	Transitions  []string
	Records      []string
}

// NewSnapshot builds a snapshot from a result.
func NewSnapshot(s *Scenario, result *Result) Snapshot {
	snap := Snapshot{ScenarioName: s.Name, Transitions: []string{}, Records: []string{}}
	for _, t := range result.Trace {
		snap.Transitions = append(snap.Transitions, t.Date+" "+t.From+" -> "+t.To)
	}
	for _, st := range s.Roster {
		if r, ok := result.Records[st.RollNo]; ok {
			snap.Records = append(snap.Records, describe(r))
		}
	}
	return snap
}

// Marshal encodes the snapshot as canonical JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	return canon.Marshal(canon.Object{
		"scenario_name": s.ScenarioName,
		"transitions":   s.Transitions,
		"records":       s.Records,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	data, err := NewSnapshot(scenario, result).Marshal()
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result, nil
}
