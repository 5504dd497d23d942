// Package store provides SQLite-backed persistence for run traces.
//
// The store is append-mostly:
//   - runs: one row per run, finalized when the run reaches a terminal state
//   - visits: one row per processed vertex
//   - markers: checkpoints issued by Timeline
//   - marks: the history-mark vertex that requested each checkpoint
//
// All ordering uses the logical seq stamped by the engine clock, never wall
// time. Queries order by seq ASC and break ties with id COLLATE BINARY so
// two reads of the same trace are identical.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
