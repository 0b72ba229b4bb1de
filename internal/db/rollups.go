package db

import (
	"fmt"

	"github.com/sitwell-data/posture.report/internal/session"
)

// RollupRow is a stored aggregation window.
type RollupRow struct {
	ID       int64  `json:"id"`
	DeviceID string `json:"device_id"`
	session.Rollup
}

// InsertRollup persists one aggregation window.
func (db *DB) InsertRollup(deviceID string, r *session.Rollup) error {
	query := `
		INSERT INTO rollups (
			device_id, window_start_ns, window_end_ns, frames, aligned_frames,
			aligned_ratio, avg_neck_deg, max_neck_deg,
			avg_nose_offset_px, max_nose_offset_px
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(
		query,
		deviceID,
		r.WindowStartNs,
		r.WindowEndNs,
		r.Frames,
		r.AlignedFrames,
		r.AlignedRatio,
		r.AvgNeckDeg,
		r.MaxNeckDeg,
		r.AvgNoseOffsetPx,
		r.MaxNoseOffsetPx,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rollup: %w", err)
	}

	return nil
}

// RollupFilter narrows ListRollups results. Zero values mean no
// filtering on that field.
type RollupFilter struct {
	DeviceID string
	SinceNs  int64 // windows starting at or after this timestamp
	UntilNs  int64 // windows starting before this timestamp
	Limit    int
}

// ListRollups returns stored windows, oldest first, for charting.
func (db *DB) ListRollups(filter RollupFilter) ([]RollupRow, error) {
	query := `
		SELECT id, device_id, window_start_ns, window_end_ns, frames,
			aligned_frames, aligned_ratio, avg_neck_deg, max_neck_deg,
			avg_nose_offset_px, max_nose_offset_px
		FROM rollups WHERE 1=1
	`
	args := []interface{}{}

	if filter.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, filter.DeviceID)
	}
	if filter.SinceNs > 0 {
		query += " AND window_start_ns >= ?"
		args = append(args, filter.SinceNs)
	}
	if filter.UntilNs > 0 {
		query += " AND window_start_ns < ?"
		args = append(args, filter.UntilNs)
	}

	query += " ORDER BY window_start_ns ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollups: %w", err)
	}
	defer rows.Close()

	var rollups []RollupRow
	for rows.Next() {
		var r RollupRow
		err := rows.Scan(
			&r.ID,
			&r.DeviceID,
			&r.WindowStartNs,
			&r.WindowEndNs,
			&r.Frames,
			&r.AlignedFrames,
			&r.AlignedRatio,
			&r.AvgNeckDeg,
			&r.MaxNeckDeg,
			&r.AvgNoseOffsetPx,
			&r.MaxNoseOffsetPx,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rollup: %w", err)
		}
		rollups = append(rollups, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rollups: %w", err)
	}

	return rollups, nil
}
