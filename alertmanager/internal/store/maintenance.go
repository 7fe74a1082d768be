package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"av-ops-console/shared/issues"
)

// MaintenanceForRoom loads the maintenance window for a room. A room
// with no stored window gets an empty, disabled one.
func (s *Store) MaintenanceForRoom(ctx context.Context, roomID string) (issues.MaintenanceInfo, error) {
	var info issues.MaintenanceInfo
	err := s.pool.QueryRow(ctx, `
		SELECT room_id, start_time, end_time, note
		FROM maintenance
		WHERE room_id = $1
	`, roomID).Scan(&info.RoomID, &info.Start, &info.End, &info.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return issues.MaintenanceInfo{RoomID: roomID}, nil
	}
	if err != nil {
		return issues.MaintenanceInfo{}, err
	}
	return info, nil
}

// RoomsInMaintenance lists windows that cover the current time.
func (s *Store) RoomsInMaintenance(ctx context.Context) ([]issues.MaintenanceInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT room_id, start_time, end_time, note
		FROM maintenance
		WHERE start_time IS NOT NULL AND end_time IS NOT NULL
		AND start_time <= now() AND end_time >= now()
		ORDER BY room_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []issues.MaintenanceInfo
	for rows.Next() {
		var info issues.MaintenanceInfo
		if err := rows.Scan(&info.RoomID, &info.Start, &info.End, &info.Note); err != nil {
			return nil, err
		}
		list = append(list, info)
	}
	return list, rows.Err()
}

// SetMaintenance upserts a room's window and mirrors the bounds onto
// the room's open issue so poll snapshots carry them. A window with
// either bound absent disables maintenance for the room.
func (s *Store) SetMaintenance(ctx context.Context, info issues.MaintenanceInfo) (issues.MaintenanceInfo, error) {
	var start, end *time.Time
	if info.Enabled() {
		start, end = info.Start, info.End
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return issues.MaintenanceInfo{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO maintenance (room_id, start_time, end_time, note)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room_id) DO UPDATE
		SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time, note = EXCLUDED.note
	`, info.RoomID, start, end, info.Note)
	if err != nil {
		return issues.MaintenanceInfo{}, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE issues SET maintenance_start = $2, maintenance_end = $3
		WHERE room_id = $1 AND end_time IS NULL
	`, info.RoomID, start, end)
	if err != nil {
		return issues.MaintenanceInfo{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return issues.MaintenanceInfo{}, err
	}

	info.Start = start
	info.End = end
	return info, nil
}
