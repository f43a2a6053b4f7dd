package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/idlink/internal/identity"
)

// MarshalTrace renders a scenario trace as canonical JSON: sorted keys, no
// insignificant whitespace, no trailing newline. Identical runs produce
// identical bytes, which is what golden files compare.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	steps := make([]any, 0, len(result.Trace))
	for _, ev := range result.Trace {
		steps = append(steps, map[string]any{
			"step":   ev.Step,
			"op":     ev.Op,
			"args":   ev.Args,
			"result": ev.Result,
		})
	}
	return identity.MarshalCanonical(map[string]any{
		"scenario_name": scenarioName,
		"trace":         steps,
	})
}

// RunWithGolden runs scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
//
// The error return covers scenarios that cannot run; a trace mismatch
// fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
