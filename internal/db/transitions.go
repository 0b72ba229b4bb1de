package db

import (
	"fmt"

	"github.com/sitwell-data/posture.report/internal/session"
)

// RecordTransition persists one verdict transition.
func (db *DB) RecordTransition(tr *session.Transition) error {
	query := `
		INSERT INTO transitions (
			session_id, ts_ns, aligned, color, from_color, metric, value
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	alignedInt := 0
	if tr.Aligned {
		alignedInt = 1
	}

	_, err := db.Exec(
		query,
		tr.SessionID,
		tr.TsNs,
		alignedInt,
		tr.Color,
		tr.FromColor,
		tr.Metric,
		tr.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}

	return nil
}

// ListTransitions returns the transitions of a session in time order.
func (db *DB) ListTransitions(sessionID string) ([]session.Transition, error) {
	query := `
		SELECT session_id, ts_ns, aligned, color, from_color, metric, value
		FROM transitions
		WHERE session_id = ?
		ORDER BY ts_ns ASC
	`

	rows, err := db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var transitions []session.Transition
	for rows.Next() {
		var tr session.Transition
		var alignedInt int
		err := rows.Scan(
			&tr.SessionID,
			&tr.TsNs,
			&alignedInt,
			&tr.Color,
			&tr.FromColor,
			&tr.Metric,
			&tr.Value,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.Aligned = alignedInt == 1
		transitions = append(transitions, tr)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}

	return transitions, nil
}
