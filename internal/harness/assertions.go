package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// AssertionError is returned when an expectation or assertion fails.
// It includes the trace of the run it was checked against.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Labels processed by the run
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, label := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, label)
		}
	}
	return buf.String()
}

// EvaluateExpect checks the root run against exp.
// Returns one message per mismatch.
func EvaluateExpect(result *Result, exp Expect) []string {
	root, ok := result.Root()
	if !ok {
		return []string{"no runs were recorded"}
	}
	labels := root.Labels()
	fail := func(typ, expected, actual string) error {
		return &AssertionError{Type: typ, Expected: expected, Actual: actual, Trace: labels}
	}

	var errs []error
	if root.State != exp.State {
		errs = append(errs, fail("state", exp.State, root.State+errorSuffix(root.Error)))
	}
	if exp.Error != "" && !strings.Contains(root.Error, exp.Error) {
		errs = append(errs, fail("error", fmt.Sprintf("error containing %q", exp.Error), fmt.Sprintf("%q", root.Error)))
	}
	if exp.Visits != nil && !slices.Equal(labels, exp.Visits) {
		errs = append(errs, fail("visits", strings.Join(exp.Visits, " -> "), strings.Join(labels, " -> ")))
	}
	for _, label := range sortedLabels(exp.VisitCounts) {
		want := exp.VisitCounts[label]
		if got := countLabel(labels, label); got != want {
			errs = append(errs, fail("visit_counts", fmt.Sprintf("%d visits of %s", want, label), fmt.Sprintf("%d visits", got)))
		}
	}
	if exp.Marks != nil && len(root.Marks) != *exp.Marks {
		errs = append(errs, fail("marks", fmt.Sprintf("%d marks", *exp.Marks), fmt.Sprintf("%d marks %v", len(root.Marks), root.Marks)))
	}
	if exp.Runs != nil && len(result.Runs) != *exp.Runs {
		errs = append(errs, fail("runs", fmt.Sprintf("%d runs", *exp.Runs), fmt.Sprintf("%d runs", len(result.Runs))))
	}
	return messages(errs)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a list of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []error
	for _, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = append(errs, err)
		}
	}
	return messages(errs)
}

func evaluateAssertion(result *Result, a Assertion) error {
	runs := result.RunsOf(a.Schedule)
	if a.Schedule == "" {
		if root, ok := result.Root(); ok {
			runs = []RunTrace{root}
		}
	}
	if len(runs) == 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("a run of %s", a.Schedule),
			Actual:   "no such run",
		}
	}

	if a.Type == AssertRunState {
		for _, r := range runs {
			if r.State != a.State {
				return &AssertionError{
					Type:     AssertRunState,
					Expected: fmt.Sprintf("every run of %s %s", a.Schedule, a.State),
					Actual:   fmt.Sprintf("%s %s%s", r.RunID, r.State, errorSuffix(r.Error)),
					Trace:    r.Labels(),
				}
			}
		}
		return nil
	}

	for _, r := range runs {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(r.Labels(), a)
		case AssertTraceOrder:
			err = assertTraceOrder(r.Labels(), a)
		case AssertTraceCount:
			err = assertTraceCount(r.Labels(), a)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// assertTraceContains checks that label was processed at least once.
func assertTraceContains(trace []string, a Assertion) error {
	if slices.Contains(trace, a.Label) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("vertex %s in trace", a.Label),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first visits of the labels appear in
// the given order. Visits don't need to be consecutive.
func assertTraceOrder(trace []string, a Assertion) error {
	positions := make(map[string]int)
	for i, label := range trace {
		if _, seen := positions[label]; !seen {
			positions[label] = i + 1 // 1-indexed for readability
		}
	}

	for _, label := range a.Labels {
		if positions[label] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all labels present: %v", a.Labels),
				Actual:   fmt.Sprintf("missing label: %s", label),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Labels); i++ {
		prev, curr := a.Labels[i-1], a.Labels[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("labels in order: %v", a.Labels),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that label was processed exactly a.Count times.
func assertTraceCount(trace []string, a Assertion) error {
	if count := countLabel(trace, a.Label); count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Label),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func countLabel(trace []string, label string) int {
	n := 0
	for _, l := range trace {
		if l == label {
			n++
		}
	}
	return n
}

func sortedLabels(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func errorSuffix(msg string) string {
	if msg == "" {
		return ""
	}
	return " (" + msg + ")"
}

func messages(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
