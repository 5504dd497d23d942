package store

import (
	"context"
	"fmt"

	"github.com/roach88/sequencer/internal/history"
	"github.com/roach88/sequencer/internal/idgen"
)

// Timeline issues durable checkpoints. Marker seqs continue across
// reopenings of the same database.
type Timeline struct {
	store *Store
	ids   idgen.Generator
}

var _ history.Timeline = (*Timeline)(nil)

// NewTimeline creates a timeline over s. A nil ids generator issues
// UUIDv7 marker ids.
func NewTimeline(s *Store, ids idgen.Generator) *Timeline {
	if ids == nil {
		ids = idgen.UUIDv7Generator{}
	}
	return &Timeline{store: s, ids: ids}
}

// Mark allocates the next marker seq and stores the marker.
func (t *Timeline) Mark(ctx context.Context) (history.TimeMarker, error) {
	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return history.TimeMarker{}, fmt.Errorf("mark: begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM markers`).Scan(&seq); err != nil {
		return history.TimeMarker{}, fmt.Errorf("mark: next seq: %w", err)
	}

	m := history.TimeMarker{ID: t.ids.Next(), Seq: seq}
	if _, err := tx.ExecContext(ctx, `INSERT INTO markers (id, seq) VALUES (?, ?)`, m.ID, m.Seq); err != nil {
		return history.TimeMarker{}, fmt.Errorf("mark: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return history.TimeMarker{}, fmt.Errorf("mark: commit: %w", err)
	}
	return m, nil
}

// Markers returns every marker in seq order.
func (t *Timeline) Markers(ctx context.Context) ([]history.TimeMarker, error) {
	rows, err := t.store.db.QueryContext(ctx, `SELECT id, seq FROM markers ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query markers: %w", err)
	}
	defer rows.Close()

	markers := []history.TimeMarker{}
	for rows.Next() {
		var m history.TimeMarker
		if err := rows.Scan(&m.ID, &m.Seq); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markers: %w", err)
	}
	return markers, nil
}
