package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/sequencer/internal/engine"
	"github.com/roach88/sequencer/internal/ir"
)

// WriteRunStarted inserts the row for a run that has just started.
// Duplicate run ids are ignored.
func (s *Store) WriteRunStarted(ctx context.Context, r engine.RunInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, parent_id, schedule_id, schedule_name, local, state, started_seq, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.RunID,
		r.ParentRunID,
		string(r.Schedule),
		r.ScheduleName,
		r.Local,
		r.State.String(),
		r.Seq,
		ir.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("write run started: %w", err)
	}
	return nil
}

// WriteRunFinished records the terminal state of a run. The run must have
// been written by WriteRunStarted.
func (s *Store) WriteRunFinished(ctx context.Context, r engine.RunInfo) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET state = ?, error = ?, visits = ?, finished_seq = ?
		WHERE id = ?
	`,
		r.State.String(),
		errorText(r.Err),
		r.Visits,
		r.Seq,
		r.RunID,
	)
	if err != nil {
		return fmt.Errorf("write run finished: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write run finished: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("write run finished: run %s was never started", r.RunID)
	}
	return nil
}

// WriteVisit inserts one processed vertex. Writing the same (run, seq)
// twice is a no-op.
func (s *Store) WriteVisit(ctx context.Context, v engine.Visit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visits
		(run_id, seq, vertex, label, kind, state, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		v.RunID,
		v.Seq,
		v.Index,
		v.Label,
		v.Kind.String(),
		v.State.String(),
		errorText(v.Err),
	)
	if err != nil {
		return fmt.Errorf("write visit: %w", err)
	}
	return nil
}

// WriteMark links a marker to the history-mark vertex that requested it.
func (s *Store) WriteMark(ctx context.Context, m engine.Mark) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO marks
		(run_id, seq, vertex, label, marker_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		m.RunID,
		m.Seq,
		m.Index,
		m.Label,
		m.Marker.ID,
	)
	if err != nil {
		return fmt.Errorf("write mark: %w", err)
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Recorder persists engine events. Observer methods cannot return errors,
// so failures are logged and collected for Err.
//
// Wrap a Recorder in engine.NewAsyncObserver to keep database latency off
// the run goroutines.
type Recorder struct {
	store  *Store
	ctx    context.Context
	logger *slog.Logger

	mu  sync.Mutex
	err error
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to s. Writes use ctx.
func NewRecorder(ctx context.Context, s *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, ctx: ctx, logger: logger}
}

func (r *Recorder) RunStarted(ri engine.RunInfo) {
	r.check(r.store.WriteRunStarted(r.ctx, ri))
}

func (r *Recorder) VertexProcessed(v engine.Visit) {
	r.check(r.store.WriteVisit(r.ctx, v))
}

func (r *Recorder) Marked(m engine.Mark) {
	r.check(r.store.WriteMark(r.ctx, m))
}

func (r *Recorder) RunFinished(ri engine.RunInfo) {
	r.check(r.store.WriteRunFinished(r.ctx, ri))
}

// Err returns every write error seen so far, joined.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) check(err error) {
	if err == nil {
		return
	}
	r.logger.Error("trace write failed", "error", err)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = errors.Join(r.err, err)
}
