// Package harness runs conformance scenarios against compiled workflow
// definitions.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: release_happy_path
//	description: "Release builds, verifies and announces"
//	definitions:
//	  - ../defs/release
//	schedule: release
//	cancel_at: compile        # optional
//	max_visits: 100           # optional
//	expect:
//	  state: completed
//	  visits: [start, compile, end]
//	  visit_counts: {compile: 1}
//	  marks: 1
//	  runs: 2
//	assertions:
//	  - type: trace_order
//	    labels: [compile, verify]
//	  - type: run_state
//	    schedule: verify
//	    state: completed
//
// Unknown fields are rejected so typos fail loudly.
//
// # Assertion Types
//
//   - trace_contains: a label was processed
//   - trace_order: labels were first processed in the given order
//   - trace_count: a label was processed exactly count times
//   - run_state: every run of a schedule ended in the given state
//
// Trace assertions apply to the root run unless schedule names another
// schedule, in which case they must hold for each of its runs.
//
// # Deterministic Testing
//
// Every scenario gets fresh registries, sequential id generators and an
// in-memory SQLite store that the engine records into. Runs are read back
// from the store, so golden snapshots compare exactly what `trace` would
// show for the same execution.
package harness
