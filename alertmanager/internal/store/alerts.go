package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"av-ops-console/shared/events"
	"av-ops-console/shared/issues"
	"av-ops-console/shared/status"
)

// OpenAlert records a new active alert on the room's open issue,
// opening the issue first when the room has none. Re-opening an alert
// that is already active for the same device and type is a no-op.
func (s *Store) OpenAlert(ctx context.Context, room issues.Room, device issues.Device, alertType string, start time.Time) (issues.Alert, bool, error) {
	issue, _, err := s.EnsureActiveIssue(ctx, room)
	if err != nil {
		return issues.Alert{}, false, err
	}

	var existingID string
	err = s.pool.QueryRow(ctx, `
		SELECT alert_id FROM alerts
		WHERE issue_id = $1 AND device_id = $2 AND alert_type = $3 AND end_time IS NULL
	`, issue.ID, device.ID, alertType).Scan(&existingID)
	if err == nil {
		alerts, err := s.alertsForIssue(ctx, issue.ID)
		if err != nil {
			return issues.Alert{}, false, err
		}
		return alerts[existingID], false, nil
	}

	alert := issues.Alert{
		ID:      uuid.NewString(),
		IssueID: issue.ID,
		Device:  device,
		Type:    alertType,
		Start:   start.UTC(),
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return issues.Alert{}, false, err
	}
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx, `
		INSERT INTO alerts (alert_id, issue_id, room_id, device_id, device_name, alert_type, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, alert.ID, issue.ID, room.ID, device.ID, device.Name, alertType, alert.Start)
	if err != nil {
		return issues.Alert{}, false, err
	}
	if err := insertOutboxTx(ctx, tx, events.TopicAlertStream, "alert", alert.ID, status.AlertEventOpened, alert); err != nil {
		return issues.Alert{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return issues.Alert{}, false, err
	}
	return alert, true, nil
}

// CloseAlert ends the active alert for a device and type. Returns
// false when no matching alert was open.
func (s *Store) CloseAlert(ctx context.Context, roomID string, deviceID string, alertType string, end time.Time) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)
	var alertID string
	err = tx.QueryRow(ctx, `
		UPDATE alerts SET end_time = $4
		WHERE room_id = $1 AND device_id = $2 AND alert_type = $3 AND end_time IS NULL
		RETURNING alert_id
	`, roomID, deviceID, alertType, end.UTC()).Scan(&alertID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := insertOutboxTx(ctx, tx, events.TopicAlertStream, "alert", alertID, status.AlertEventClosed, map[string]string{
		"alertID":   alertID,
		"roomID":    roomID,
		"deviceID":  deviceID,
		"alertType": alertType,
	}); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *Store) alertsForIssue(ctx context.Context, issueID string) (map[string]issues.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.alert_id, a.issue_id, a.room_id, i.room_name, a.device_id, a.device_name, a.alert_type, a.start_time, a.end_time
		FROM alerts a
		JOIN issues i ON i.issue_id = a.issue_id
		WHERE a.issue_id = $1
		ORDER BY a.start_time ASC
	`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make(map[string]issues.Alert)
	for rows.Next() {
		var alert issues.Alert
		var end *time.Time
		if err := rows.Scan(&alert.ID, &alert.IssueID, &alert.Device.Room.ID, &alert.Device.Room.Name,
			&alert.Device.ID, &alert.Device.Name, &alert.Type, &alert.Start, &end); err != nil {
			return nil, err
		}
		alert.End = end
		alerts[alert.ID] = alert
	}
	return alerts, rows.Err()
}
