package harness

// VisitTrace is one processed vertex of a run.
type VisitTrace struct {
	Label string `json:"label"`
	Kind  string `json:"kind"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// RunTrace is the recorded history of one run.
type RunTrace struct {
	RunID    string       `json:"run_id"`
	ParentID string       `json:"parent_id,omitempty"`
	Schedule string       `json:"schedule"`
	State    string       `json:"state"`
	Error    string       `json:"error,omitempty"`
	Visits   []VisitTrace `json:"visits"`
	Marks    []string     `json:"marks"`
}

// Labels returns the labels of the run's visits in order.
func (r RunTrace) Labels() []string {
	out := make([]string, len(r.Visits))
	for i, v := range r.Visits {
		out[i] = v.Label
	}
	return out
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation and assertion holds.
	Pass bool `json:"pass"`

	// Runs holds the root run first, then its descendants in dispatch
	// order.
	Runs []RunTrace `json:"runs"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Runs:   []RunTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Root returns the scenario's top-level run.
func (r *Result) Root() (RunTrace, bool) {
	if len(r.Runs) == 0 {
		return RunTrace{}, false
	}
	return r.Runs[0], true
}

// RunsOf returns the runs of the named schedule.
func (r *Result) RunsOf(schedule string) []RunTrace {
	var out []RunTrace
	for _, run := range r.Runs {
		if run.Schedule == schedule {
			out = append(out, run)
		}
	}
	return out
}
