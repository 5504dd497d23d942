package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/sequencer/internal/ir"
)

// Run is a persisted run row.
type Run struct {
	ID            string        `json:"id"`
	ParentID      string        `json:"parent_id,omitempty"`
	ScheduleID    ir.ScheduleID `json:"schedule_id"`
	ScheduleName  string        `json:"schedule_name"`
	Local         bool          `json:"local"`
	State         string        `json:"state"`
	Error         string        `json:"error,omitempty"`
	Visits        int           `json:"visits"`
	StartedSeq    int64         `json:"started_seq"`
	FinishedSeq   int64         `json:"finished_seq,omitempty"`
	EngineVersion string        `json:"engine_version"`
}

// Finished reports whether the run reached a terminal state.
func (r Run) Finished() bool { return r.FinishedSeq != 0 }

// VisitRecord is a persisted vertex visit.
type VisitRecord struct {
	RunID  string `json:"run_id"`
	Seq    int64  `json:"seq"`
	Vertex int    `json:"vertex"`
	Label  string `json:"label"`
	Kind   string `json:"kind"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

// MarkRecord is a persisted history mark joined with its marker.
type MarkRecord struct {
	RunID     string `json:"run_id"`
	Seq       int64  `json:"seq"`
	Vertex    int    `json:"vertex"`
	Label     string `json:"label"`
	MarkerID  string `json:"marker_id"`
	MarkerSeq int64  `json:"marker_seq"`
}

const runColumns = `id, parent_id, schedule_id, schedule_name, local, state, error, visits, started_seq, finished_seq, engine_version`

// ListRuns returns every run ordered by start seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	return s.FindRuns(ctx, nil)
}

// ReadChildren returns the sub-schedule runs dispatched by runID.
func (s *Store) ReadChildren(ctx context.Context, runID string) ([]Run, error) {
	return s.FindRuns(ctx, Equals{Column: "parent_id", Value: runID})
}

// ReadRun retrieves a single run by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ReadVisits returns the visits of a run in seq order.
func (s *Store) ReadVisits(ctx context.Context, runID string) ([]VisitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, vertex, label, kind, state, error
		FROM visits
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	visits := []VisitRecord{}
	for rows.Next() {
		var v VisitRecord
		if err := rows.Scan(&v.RunID, &v.Seq, &v.Vertex, &v.Label, &v.Kind, &v.State, &v.Error); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}
	return visits, nil
}

// ReadMarks returns the history marks of a run in seq order. Marks whose
// marker row is missing report MarkerSeq 0.
func (s *Store) ReadMarks(ctx context.Context, runID string) ([]MarkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.run_id, m.seq, m.vertex, m.label, m.marker_id, COALESCE(k.seq, 0)
		FROM marks m
		LEFT JOIN markers k ON k.id = m.marker_id
		WHERE m.run_id = ?
		ORDER BY m.seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query marks: %w", err)
	}
	defer rows.Close()

	marks := []MarkRecord{}
	for rows.Next() {
		var m MarkRecord
		if err := rows.Scan(&m.RunID, &m.Seq, &m.Vertex, &m.Label, &m.MarkerID, &m.MarkerSeq); err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		marks = append(marks, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate marks: %w", err)
	}
	return marks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r        Run
		schedule string
		finished sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.ParentID, &schedule, &r.ScheduleName, &r.Local, &r.State,
		&r.Error, &r.Visits, &r.StartedSeq, &finished, &r.EngineVersion)
	if err != nil {
		return Run{}, err
	}
	r.ScheduleID = ir.ScheduleID(schedule)
	r.FinishedSeq = finished.Int64
	return r, nil
}

func collectRuns(rows *sql.Rows) ([]Run, error) {
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
