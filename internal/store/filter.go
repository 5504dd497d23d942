package store

import (
	"context"
	"fmt"
	"strings"
)

// Predicate filters run rows.
//
// Sealed: only Equals and And implement it.
type Predicate interface {
	predicateNode()
}

// Equals matches rows whose column equals a literal value.
type Equals struct {
	Column string
	Value  any
}

func (Equals) predicateNode() {}

// And matches rows satisfying every predicate. An empty And matches all
// rows.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// filterColumns lists the run columns a predicate may name. Column names
// are interpolated into SQL, so nothing outside this set is accepted.
var filterColumns = map[string]bool{
	"parent_id":     true,
	"schedule_id":   true,
	"schedule_name": true,
	"local":         true,
	"state":         true,
}

// compilePredicate converts p to a WHERE fragment. Values are always
// bound as parameters.
func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case Equals:
		if !filterColumns[pred.Column] {
			return "", nil, fmt.Errorf("cannot filter runs by %q", pred.Column)
		}
		return pred.Column + " = ?", []any{pred.Value}, nil
	case And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, args, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, args...)
		}
		return "(" + strings.Join(parts, " AND ") + ")", params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// FindRuns returns the runs matching p ordered by start seq, with id as
// tiebreaker. A nil predicate matches every run.
func (s *Store) FindRuns(ctx context.Context, p Predicate) ([]Run, error) {
	where, params, err := compilePredicate(p)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE `+where+`
		ORDER BY started_seq ASC, id COLLATE BINARY ASC
	`, params...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return collectRuns(rows)
}
