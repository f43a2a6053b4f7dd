package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/phone_tiebreak.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	// Repeated lookups within one run agree as well.
	if diff := cmp.Diff(first.Trace[0].Result, first.Trace[1].Result); diff != "" {
		t.Errorf("repeated find_candidates differs (-first +second):\n%s", diff)
	}
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "wrong expectation",
		Records:     []RecordSpec{{ID: "u1", Email: "a@x.com"}},
		Flow: []FlowStep{{
			Op:     OpFindCandidates,
			Args:   StepArgs{Email: "a@x.com"},
			Expect: map[string]any{"candidates": []any{map[string]any{"id": "u1", "confidence": 95}}},
		}},
		Assertions: []Assertion{{Type: AssertTraceCount, Op: OpMerge, Count: 1}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "candidates[0].confidence: expected 95")
	assert.Contains(t, result.Errors[1], "Assertion failed: trace_count")
}

func TestRun_PolicyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lenient.cue"), []byte("suggest_floor: 60\n"), 0o644))
	scenarioYAML := `
name: lenient_policy
description: "A lower floor surfaces name-only matches"
policy: lenient.cue
records:
  - id: u1
    name: John Smith
flow:
  - op: suggest
    args: { name: Jonathan Smith }
    expect: { should_suggest: true, confidence: 61, candidates: [u1] }
assertions:
  - type: trace_contains
    op: suggest
`
	path := filepath.Join(dir, "lenient.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lenient.cue"), scenario.Policy)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_InvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "bad.cue")
	require.NoError(t, os.WriteFile(policyPath, []byte("max_candidates: 0\n"), 0o644))

	_, err := Run(&Scenario{
		Name:        "bad_policy",
		Description: "invalid policy",
		Policy:      policyPath,
		Flow:        []FlowStep{{Op: OpSuggest}},
		Assertions:  []Assertion{{Type: AssertUniquePrimaryEmails}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load policy")
}

func TestRun_SeedFailure(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "bad_seed",
		Description: "merged record without target",
		Records:     []RecordSpec{{ID: "x", Status: "merged"}},
		Flow:        []FlowStep{{Op: OpGroup, Args: StepArgs{Group: "g"}}},
		Assertions:  []Assertion{{Type: AssertUniquePrimaryEmails}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "records[0]")
}

func TestRun_UniquePrimaryEmailsDetectsDuplicates(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "dup",
		Description: "two active records share a primary email",
		Records:     []RecordSpec{{ID: "a", Email: "d@x.com"}, {ID: "b", Email: "d@x.com"}},
		Flow:        []FlowStep{{Op: OpFindCandidates, Args: StepArgs{Email: "d@x.com"}}},
		Assertions:  []Assertion{{Type: AssertUniquePrimaryEmails}},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "d@x.com (2 records)")
}

func TestRun_ErrorCodesInTrace(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "errors",
		Description: "failures are rendered as codes",
		Flow: []FlowStep{
			{Op: OpResolve, Args: StepArgs{ID: "ghost"}, Expect: map[string]any{"error_code": "NOT_FOUND"}},
			{Op: OpGroup, Expect: map[string]any{"error_code": "INVALID_REQUEST"}},
			{Op: OpMerge, Args: StepArgs{Primary: "a", Secondaries: []string{"a"}}, Expect: map[string]any{"code": "INVALID_REQUEST", "success": false}},
		},
		Assertions: []Assertion{{Type: AssertTraceOrder, Ops: []string{OpResolve, OpGroup, OpMerge}}},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}
