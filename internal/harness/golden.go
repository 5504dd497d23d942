package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sequencer/internal/ir"
)

// TraceSnapshot captures the recorded runs of a scenario execution.
// Logical seq numbers and marker ids are left out: runs that execute
// concurrently may interleave differently from one execution to the next,
// but each run's own trace is fixed.
type TraceSnapshot struct {
	ScenarioName string     `json:"scenario_name"`
	Runs         []RunTrace `json:"runs"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	runs := make([]any, len(s.Runs))
	for i, r := range s.Runs {
		visits := make([]any, len(r.Visits))
		for j, v := range r.Visits {
			vm := map[string]any{
				"label": v.Label,
				"kind":  v.Kind,
				"state": v.State,
			}
			if v.Error != "" {
				vm["error"] = v.Error
			}
			visits[j] = vm
		}
		rm := map[string]any{
			"run_id":   r.RunID,
			"schedule": r.Schedule,
			"state":    r.State,
			"visits":   visits,
			"marks":    append([]string{}, r.Marks...),
		}
		if r.ParentID != "" {
			rm["parent_id"] = r.ParentID
		}
		if r.Error != "" {
			rm["error"] = r.Error
		}
		runs[i] = rm
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"runs":          runs,
	}
}

// Snapshot renders the result as canonical JSON.
func Snapshot(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: name, Runs: result.Runs}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, Options{})
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
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
