package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/sitwell-data/posture.report/internal/session"
)

// ErrSessionNotFound reports a lookup for a session ID with no stored row.
var ErrSessionNotFound = errors.New("session not found")

// sessionColumns is the SELECT list shared by the session queries, kept
// in one place so Scan calls stay in step with it.
const sessionColumns = `
	session_id, device_id, start_ns, end_ns, frames, aligned_frames,
	aligned_ratio, transitions, p50_neck_deg, p85_neck_deg, p95_neck_deg,
	p50_nose_offset_px, p85_nose_offset_px, p95_nose_offset_px, end_reason
`

// InsertSession persists a completed session.
func (db *DB) InsertSession(s *session.Session) error {
	query := `
		INSERT INTO sessions (
			session_id, device_id, start_ns, end_ns, frames, aligned_frames,
			aligned_ratio, transitions, p50_neck_deg, p85_neck_deg, p95_neck_deg,
			p50_nose_offset_px, p85_nose_offset_px, p95_nose_offset_px, end_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(
		query,
		s.ID,
		s.DeviceID,
		s.StartNs,
		s.EndNs,
		s.Frames,
		s.AlignedFrames,
		s.AlignedRatio,
		s.Transitions,
		s.P50NeckDeg,
		s.P85NeckDeg,
		s.P95NeckDeg,
		s.P50NoseOffsetPx,
		s.P85NoseOffsetPx,
		s.P95NoseOffsetPx,
		s.EndReason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by its public ID.
func (db *DB) GetSession(sessionID string) (*session.Session, error) {
	query := `SELECT` + sessionColumns + `FROM sessions WHERE session_id = ?`

	var s session.Session
	err := db.QueryRow(query, sessionID).Scan(
		&s.ID,
		&s.DeviceID,
		&s.StartNs,
		&s.EndNs,
		&s.Frames,
		&s.AlignedFrames,
		&s.AlignedRatio,
		&s.Transitions,
		&s.P50NeckDeg,
		&s.P85NeckDeg,
		&s.P95NeckDeg,
		&s.P50NoseOffsetPx,
		&s.P85NoseOffsetPx,
		&s.P95NoseOffsetPx,
		&s.EndReason,
	)

	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &s, nil
}

// SessionFilter narrows ListSessions results. Zero values mean no
// filtering on that field.
type SessionFilter struct {
	DeviceID string
	SinceNs  int64 // sessions starting at or after this timestamp
	UntilNs  int64 // sessions starting before this timestamp
	Limit    int
}

// ListSessions returns stored sessions, newest first.
func (db *DB) ListSessions(filter SessionFilter) ([]session.Session, error) {
	query := `SELECT` + sessionColumns + `FROM sessions WHERE 1=1`
	args := []interface{}{}

	if filter.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, filter.DeviceID)
	}
	if filter.SinceNs > 0 {
		query += " AND start_ns >= ?"
		args = append(args, filter.SinceNs)
	}
	if filter.UntilNs > 0 {
		query += " AND start_ns < ?"
		args = append(args, filter.UntilNs)
	}

	query += " ORDER BY start_ns DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		var s session.Session
		err := rows.Scan(
			&s.ID,
			&s.DeviceID,
			&s.StartNs,
			&s.EndNs,
			&s.Frames,
			&s.AlignedFrames,
			&s.AlignedRatio,
			&s.Transitions,
			&s.P50NeckDeg,
			&s.P85NeckDeg,
			&s.P95NeckDeg,
			&s.P50NoseOffsetPx,
			&s.P85NoseOffsetPx,
			&s.P95NoseOffsetPx,
			&s.EndReason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// SessionSummary pairs a stored session with its recorded transitions.
type SessionSummary struct {
	Session     session.Session      `json:"session"`
	Transitions []session.Transition `json:"transitions"`
}

// GetSessionSummary retrieves a session together with its transitions in
// time order.
func (db *DB) GetSessionSummary(sessionID string) (*SessionSummary, error) {
	s, err := db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	transitions, err := db.ListTransitions(sessionID)
	if err != nil {
		return nil, err
	}

	return &SessionSummary{
		Session:     *s,
		Transitions: transitions,
	}, nil
}
