package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/idlink/internal/identity"
)

// Scenario defines a linking scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy is an optional CUE policy file. Relative paths resolve against
	// the scenario file's directory.
	Policy string `yaml:"policy,omitempty"`

	// Records are inserted before the flow runs.
	Records []RecordSpec `yaml:"records,omitempty"`

	// Flow is the sequence of operations to execute.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// RecordSpec is a seeded identity record.
type RecordSpec struct {
	ID            string   `yaml:"id"`
	Email         string   `yaml:"email,omitempty"`
	Phone         string   `yaml:"phone,omitempty"`
	Name          string   `yaml:"name,omitempty"`
	LinkedEmails  []string `yaml:"linked_emails,omitempty"`
	LinkedPhones  []string `yaml:"linked_phones,omitempty"`
	Providers     []string `yaml:"providers,omitempty"`
	Password      string   `yaml:"password,omitempty"`
	Avatar        string   `yaml:"avatar,omitempty"`
	AvatarSource  string   `yaml:"avatar_source,omitempty"`
	EmailVerified bool     `yaml:"email_verified,omitempty"`
	PhoneVerified bool     `yaml:"phone_verified,omitempty"`
	Group         string   `yaml:"group,omitempty"`
	Master        bool     `yaml:"master,omitempty"`
	Status        string   `yaml:"status,omitempty"`
	MergedInto    string   `yaml:"merged_into,omitempty"`
}

// FlowStep is one operation of the flow.
type FlowStep struct {
	// Op names the operation (see the package documentation).
	Op string `yaml:"op"`

	// Args are the operation's arguments.
	Args StepArgs `yaml:"args"`

	// Expect is a subset of the step's result that must match. Nil skips
	// validation.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// StepArgs is the union of every operation's arguments. Each operation
// reads only the fields it documents.
type StepArgs struct {
	ID              string   `yaml:"id,omitempty"`
	Email           string   `yaml:"email,omitempty"`
	Phone           string   `yaml:"phone,omitempty"`
	Name            string   `yaml:"name,omitempty"`
	ExcludeID       string   `yaml:"exclude_id,omitempty"`
	Threshold       int      `yaml:"threshold,omitempty"`
	Primary         string   `yaml:"primary,omitempty"`
	Secondaries     []string `yaml:"secondaries,omitempty"`
	NoGroupCreation bool     `yaml:"no_group_creation,omitempty"`
	Group           string   `yaml:"group,omitempty"`
	Password        string   `yaml:"password,omitempty"`
	Providers       []string `yaml:"providers,omitempty"`
	EmailVerified   bool     `yaml:"email_verified,omitempty"`
	PhoneVerified   bool     `yaml:"phone_verified,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of occurrences (trace_count, merge_log).
	Count int `yaml:"count,omitempty"`

	// ID is the record to inspect (final_state).
	ID string `yaml:"id,omitempty"`

	// Group is the group whose merge log is counted (merge_log).
	Group string `yaml:"group,omitempty"`

	// Expect contains expected record fields (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains       = "trace_contains"
	AssertTraceOrder          = "trace_order"
	AssertTraceCount          = "trace_count"
	AssertFinalState          = "final_state"
	AssertUniquePrimaryEmails = "unique_primary_emails"
	AssertMergeLog            = "merge_log"
)

// Operation names.
const (
	OpFindCandidates = "find_candidates"
	OpSuggest        = "suggest"
	OpAutoLink       = "autolink"
	OpMerge          = "merge"
	OpGroup          = "group"
	OpResolve        = "resolve"
	OpRegister       = "register"
	OpHistory        = "history"
)

var knownOps = []string{
	OpFindCandidates, OpSuggest, OpAutoLink, OpMerge,
	OpGroup, OpResolve, OpRegister, OpHistory,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Policy != "" && !filepath.IsAbs(scenario.Policy) {
		scenario.Policy = filepath.Join(filepath.Dir(path), scenario.Policy)
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

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Records))
	for i, rec := range s.Records {
		if rec.ID == "" {
			return fmt.Errorf("records[%d]: id is required", i)
		}
		if seen[rec.ID] {
			return fmt.Errorf("records[%d]: duplicate id %q", i, rec.ID)
		}
		seen[rec.ID] = true
		if rec.Status != "" && !identity.AccountStatus(rec.Status).Valid() {
			return fmt.Errorf("records[%d]: unknown status %q", i, rec.Status)
		}
	}

	for i, step := range s.Flow {
		if step.Op == "" {
			return fmt.Errorf("flow[%d]: op is required", i)
		}
		if !slices.Contains(knownOps, step.Op) {
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertUniquePrimaryEmails:
	case AssertMergeLog:
		if a.Group == "" {
			return fmt.Errorf("assertions[%d]: group is required for merge_log", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for merge_log", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
