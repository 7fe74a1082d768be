package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"av-ops-console/shared/events"
	"av-ops-console/shared/issues"
	"av-ops-console/shared/status"
)

var ErrInvalidStatusTransition = errors.New("invalid issue status transition")

// ActiveIssues loads every open issue with its alerts, incidents and
// event history assembled.
func (s *Store) ActiveIssues(ctx context.Context) ([]issues.Issue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT issue_id, room_id, room_name, start_time, end_time, maintenance_start, maintenance_end, acknowledged_at, status
		FROM issues
		WHERE end_time IS NULL
		ORDER BY start_time ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []issues.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range list {
		if err := s.hydrateIssue(ctx, &list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// ActiveIssueForRoom loads the open issue for one room.
func (s *Store) ActiveIssueForRoom(ctx context.Context, roomID string) (issues.Issue, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT issue_id, room_id, room_name, start_time, end_time, maintenance_start, maintenance_end, acknowledged_at, status
		FROM issues
		WHERE room_id = $1 AND end_time IS NULL
	`, roomID)
	issue, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return issues.Issue{}, issues.ErrNoActiveIssue
	}
	if err != nil {
		return issues.Issue{}, err
	}
	if err := s.hydrateIssue(ctx, &issue); err != nil {
		return issues.Issue{}, err
	}
	return issue, nil
}

// IssueByID loads one issue, open or closed.
func (s *Store) IssueByID(ctx context.Context, issueID string) (issues.Issue, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT issue_id, room_id, room_name, start_time, end_time, maintenance_start, maintenance_end, acknowledged_at, status
		FROM issues
		WHERE issue_id = $1
	`, issueID)
	issue, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return issues.Issue{}, issues.ErrIssueNotFound
	}
	if err != nil {
		return issues.Issue{}, err
	}
	if err := s.hydrateIssue(ctx, &issue); err != nil {
		return issues.Issue{}, err
	}
	return issue, nil
}

// EnsureActiveIssue returns the open issue for a room, opening a new
// one when none exists. The second return reports whether an issue was
// created.
func (s *Store) EnsureActiveIssue(ctx context.Context, room issues.Room) (issues.Issue, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return issues.Issue{}, false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT issue_id, room_id, room_name, start_time, end_time, maintenance_start, maintenance_end, acknowledged_at, status
		FROM issues
		WHERE room_id = $1 AND end_time IS NULL
		FOR UPDATE
	`, room.ID)
	issue, err := scanIssue(row)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return issues.Issue{}, false, err
		}
		if err := s.hydrateIssue(ctx, &issue); err != nil {
			return issues.Issue{}, false, err
		}
		return issue, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return issues.Issue{}, false, err
	}

	now := time.Now().UTC()
	issue = issues.Issue{
		ID:     uuid.NewString(),
		Room:   room,
		Start:  now,
		Status: status.IssueStatusNew,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO issues (issue_id, room_id, room_name, start_time, status)
		VALUES ($1, $2, $3, $4, $5)
	`, issue.ID, room.ID, room.Name, now, issue.Status)
	if err != nil {
		return issues.Issue{}, false, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO rooms (room_id, name)
		VALUES ($1, $2)
		ON CONFLICT (room_id) DO UPDATE SET name = EXCLUDED.name
	`, room.ID, room.Name)
	if err != nil {
		return issues.Issue{}, false, err
	}
	if err := appendIssueEventTx(ctx, tx, issue.ID, issues.TypeSystemMessage, issues.NewSystemMessage("issue opened"), now); err != nil {
		return issues.Issue{}, false, err
	}
	if err := insertOutboxTx(ctx, tx, events.TopicIssueEvents, "issue", issue.ID, status.IssueEventOpened, issue); err != nil {
		return issues.Issue{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return issues.Issue{}, false, err
	}
	issue.Alerts = map[string]issues.Alert{}
	issue.Incidents = map[string]issues.Incident{}
	return issue, true, nil
}

// CloseIssueIfClear closes the room's open issue when every alert on
// it has ended. Returns true when the issue was closed.
func (s *Store) CloseIssueIfClear(ctx context.Context, roomID string) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE issues i
		SET end_time = $2, status = $3
		WHERE i.room_id = $1 AND i.end_time IS NULL
		AND NOT EXISTS (
			SELECT 1 FROM alerts a
			WHERE a.issue_id = i.issue_id AND a.end_time IS NULL
		)
	`, roomID, now, status.IssueStatusClosed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ForceCloseIssue closes an issue and every alert still open on it,
// regardless of device state. id may be an issue id or a room id.
func (s *Store) ForceCloseIssue(ctx context.Context, id string) (issues.Issue, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return issues.Issue{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT issue_id, room_id, room_name, start_time, end_time, maintenance_start, maintenance_end, acknowledged_at, status
		FROM issues
		WHERE (issue_id = $1 OR room_id = $1) AND end_time IS NULL
		FOR UPDATE
	`, id)
	issue, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return issues.Issue{}, issues.ErrNoActiveIssue
	}
	if err != nil {
		return issues.Issue{}, err
	}

	now := time.Now().UTC()
	if _, err = tx.Exec(ctx, `
		UPDATE alerts SET end_time = $2 WHERE issue_id = $1 AND end_time IS NULL
	`, issue.ID, now); err != nil {
		return issues.Issue{}, err
	}
	if _, err = tx.Exec(ctx, `
		UPDATE issues SET end_time = $2, status = $3 WHERE issue_id = $1
	`, issue.ID, now, status.IssueStatusClosed); err != nil {
		return issues.Issue{}, err
	}
	if err := appendIssueEventTx(ctx, tx, issue.ID, issues.TypeSystemMessage, issues.NewSystemMessage("issue force-closed by operator"), now); err != nil {
		return issues.Issue{}, err
	}
	if err := insertOutboxTx(ctx, tx, events.TopicIssueEvents, "issue", issue.ID, status.IssueEventClosed, issue); err != nil {
		return issues.Issue{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return issues.Issue{}, err
	}

	issue.End = &now
	issue.Status = status.IssueStatusClosed
	if err := s.hydrateIssue(ctx, &issue); err != nil {
		return issues.Issue{}, err
	}
	return issue, nil
}

// Acknowledge stamps an issue with the acknowledgment time. Passing
// nil clears it.
func (s *Store) Acknowledge(ctx context.Context, issueID string, when *time.Time) (issues.Issue, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE issues SET acknowledged_at = $2 WHERE issue_id = $1
	`, issueID, when)
	if err != nil {
		return issues.Issue{}, err
	}
	if tag.RowsAffected() == 0 {
		return issues.Issue{}, issues.ErrIssueNotFound
	}
	return s.IssueByID(ctx, issueID)
}

// SetStatus moves an issue along the status workflow, rejecting
// transitions the workflow does not allow.
func (s *Store) SetStatus(ctx context.Context, issueID string, toStatus string) (issues.Issue, error) {
	toStatus = status.NormalizeIssueStatus(toStatus)
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return issues.Issue{}, err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `
		SELECT status FROM issues WHERE issue_id = $1 FOR UPDATE
	`, issueID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return issues.Issue{}, issues.ErrIssueNotFound
	}
	if err != nil {
		return issues.Issue{}, err
	}
	if !status.CanTransition(current, toStatus) {
		return issues.Issue{}, ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	if _, err = tx.Exec(ctx, `
		UPDATE issues SET status = $2 WHERE issue_id = $1
	`, issueID, toStatus); err != nil {
		return issues.Issue{}, err
	}
	if eventType := status.EventTypeForTransition(current, toStatus); eventType != "" {
		msg := issues.NewSystemMessage("status changed from " + current + " to " + toStatus)
		if err := appendIssueEventTx(ctx, tx, issueID, issues.TypeSystemMessage, msg, now); err != nil {
			return issues.Issue{}, err
		}
		if err := insertOutboxTx(ctx, tx, events.TopicIssueEvents, "issue", issueID, eventType, map[string]string{
			"from": current,
			"to":   toStatus,
		}); err != nil {
			return issues.Issue{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return issues.Issue{}, err
	}
	return s.IssueByID(ctx, issueID)
}

// AppendIssueEvent records an event on an issue's history.
func (s *Store) AppendIssueEvent(ctx context.Context, issueID string, event issues.IssueEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return appendIssueEventTx(ctx, s.pool, issueID, event.Type, event.Data, event.Timestamp)
}

func appendIssueEventTx(ctx context.Context, db DBTX, issueID string, eventType issues.IssueEventType, data json.RawMessage, at time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO issue_events (issue_id, event_type, occurred_at, data)
		VALUES ($1, $2, $3, $4)
	`, issueID, string(eventType), at, data)
	return err
}

// Rooms lists every known room with its maintenance state at now.
func (s *Store) Rooms(ctx context.Context) ([]issues.RoomOverview, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.room_id, r.name,
			COALESCE(m.start_time <= now() AND m.end_time >= now(), false)
		FROM rooms r
		LEFT JOIN maintenance m ON m.room_id = r.room_id
		ORDER BY r.room_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []issues.RoomOverview
	for rows.Next() {
		var room issues.RoomOverview
		if err := rows.Scan(&room.ID, &room.Name, &room.InMaintenance); err != nil {
			return nil, err
		}
		list = append(list, room)
	}
	return list, rows.Err()
}

func (s *Store) hydrateIssue(ctx context.Context, issue *issues.Issue) error {
	alerts, err := s.alertsForIssue(ctx, issue.ID)
	if err != nil {
		return err
	}
	issue.Alerts = alerts

	incidents, err := s.incidentsForIssue(ctx, issue.ID)
	if err != nil {
		return err
	}
	issue.Incidents = incidents

	history, err := s.eventsForIssue(ctx, issue.ID)
	if err != nil {
		return err
	}
	issue.Events = history
	return nil
}

func (s *Store) eventsForIssue(ctx context.Context, issueID string) ([]issues.IssueEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, occurred_at, data
		FROM issue_events
		WHERE issue_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []issues.IssueEvent
	for rows.Next() {
		var event issues.IssueEvent
		var eventType string
		if err := rows.Scan(&eventType, &event.Timestamp, &event.Data); err != nil {
			return nil, err
		}
		event.Type = issues.IssueEventType(eventType)
		history = append(history, event)
	}
	return history, rows.Err()
}

func scanIssue(row pgx.Row) (issues.Issue, error) {
	var issue issues.Issue
	var ackAt, maintStart, maintEnd, end *time.Time
	err := row.Scan(&issue.ID, &issue.Room.ID, &issue.Room.Name, &issue.Start, &end,
		&maintStart, &maintEnd, &ackAt, &issue.Status)
	if err != nil {
		return issues.Issue{}, err
	}
	issue.End = end
	issue.MaintenanceStart = maintStart
	issue.MaintenanceEnd = maintEnd
	issue.AcknowledgedTime = ackAt
	return issue, nil
}
