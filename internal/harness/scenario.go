package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sequencer/internal/execution"
)

// Scenario defines a conformance test scenario: a schedule to run against
// a set of definitions, and what its run must look like.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions lists directories holding CUE definition packages.
	// Paths are relative to the scenario file location.
	Definitions []string `yaml:"definitions"`

	// Schedule names the schedule to run.
	Schedule string `yaml:"schedule"`

	// CancelAt cancels the run right after the root run processes the
	// vertex with this label.
	CancelAt string `yaml:"cancel_at,omitempty"`

	// MaxVisits bounds the number of vertices each run may process.
	MaxVisits int `yaml:"max_visits,omitempty"`

	// Expect describes the root run.
	Expect Expect `yaml:"expect"`

	// Assertions validate the trace of every run.
	// Supported types: trace_contains, trace_order, trace_count, run_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Expect is checked against the root run.
type Expect struct {
	// State is the final state of the run ("completed", "failed", ...).
	State string `yaml:"state"`

	// Visits is the exact sequence of vertex labels processed.
	Visits []string `yaml:"visits,omitempty"`

	// VisitCounts gives how often each listed label was processed.
	VisitCounts map[string]int `yaml:"visit_counts,omitempty"`

	// Marks is the number of history marks recorded.
	Marks *int `yaml:"marks,omitempty"`

	// Runs is the number of runs, the root included.
	Runs *int `yaml:"runs,omitempty"`

	// Error is a substring of the run's error.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace of the runs of one schedule. An empty
// Schedule selects the root run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check a label was processed
	// - "trace_order": Check labels were processed in order
	// - "trace_count": Check a label was processed exactly Count times
	// - "run_state": Check every run of Schedule ended in State
	Type string `yaml:"type"`

	Schedule string   `yaml:"schedule,omitempty"`
	Label    string   `yaml:"label,omitempty"`
	Labels   []string `yaml:"labels,omitempty"`
	Count    int      `yaml:"count,omitempty"`
	State    string   `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertRunState      = "run_state"
)

// LoadScenario reads and parses a scenario YAML file, resolving definition
// paths relative to the file. Returns an error if the file doesn't exist,
// is malformed, contains unknown fields (typos), or is missing required
// fields.
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

	base := filepath.Dir(path)
	for i, dir := range scenario.Definitions {
		if !filepath.IsAbs(dir) {
			scenario.Definitions[i] = filepath.Join(base, dir)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every .yaml and .yml file in dir, sorted by file
// name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var out []*Scenario
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		s, err := LoadScenario(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	return out, nil
}

// finalState reports whether name is a state a run can finish in.
func finalState(name string) bool {
	st, ok := execution.ParseState(name)
	return ok && execution.IsTerminal(st)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Definitions) == 0 {
		return fmt.Errorf("definitions list is required and must be non-empty")
	}
	if s.Schedule == "" {
		return fmt.Errorf("schedule is required")
	}
	if s.MaxVisits < 0 {
		return fmt.Errorf("max_visits must be non-negative")
	}

	for _, dir := range s.Definitions {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("definitions directory not found: %s", dir)
		}
	}

	if !finalState(s.Expect.State) {
		return fmt.Errorf("expect.state must be completed, failed or canceled, got %q", s.Expect.State)
	}
	for label, n := range s.Expect.VisitCounts {
		if n < 0 {
			return fmt.Errorf("expect.visit_counts.%s must be non-negative", label)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Labels) == 0 {
			return fmt.Errorf("assertions[%d]: labels list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertRunState:
		if a.Schedule == "" {
			return fmt.Errorf("assertions[%d]: schedule is required for run_state", index)
		}
		if !finalState(a.State) {
			return fmt.Errorf("assertions[%d]: state must be completed, failed or canceled for run_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
