package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"av-ops-console/shared/issues"
)

// LinkIncident attaches an incident to an issue and notes it on the
// issue's history.
func (s *Store) LinkIncident(ctx context.Context, issueID string, incident issues.Incident) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO incidents (incident_id, issue_id, name, short_description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (incident_id, issue_id) DO UPDATE SET name = EXCLUDED.name
	`, incident.ID, issueID, incident.Name, incident.ShortDescription)
	if err != nil {
		return err
	}
	msg := issues.NewSystemMessage("incident " + incident.Name + " linked")
	if err := appendIssueEventTx(ctx, tx, issueID, issues.TypeSystemMessage, msg, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) incidentsForIssue(ctx context.Context, issueID string) (map[string]issues.Incident, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT incident_id, name, short_description
		FROM incidents
		WHERE issue_id = $1
		ORDER BY name ASC
	`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	incidents := make(map[string]issues.Incident)
	for rows.Next() {
		var incident issues.Incident
		if err := rows.Scan(&incident.ID, &incident.Name, &incident.ShortDescription); err != nil {
			return nil, err
		}
		incidents[incident.ID] = incident
	}
	return incidents, rows.Err()
}
