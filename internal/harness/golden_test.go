package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_FlushAfterDebounce(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/flush_after_debounce.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshot_Marshal(t *testing.T) {
	snap := Snapshot{
		ScenarioName: "x",
		Transitions:  []string{"2024-05-01 idle -> dirty"},
		Records:      []string{},
	}
	data, err := snap.Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{"records":[],"scenario_name":"x","transitions":["2024-05-01 idle -> dirty"]}`, string(data))
}

func TestRun_TraceEndsAtLastSaveState(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/flush_after_debounce.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotEmpty(t, result.Trace)
	for _, ev := range result.Trace {
		assert.Equal(t, "2024-05-01", ev.Date, "%s -> %s", ev.From, ev.To)
	}
	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, "saved", last.To, "shutting the engine down adds no transition")
}
