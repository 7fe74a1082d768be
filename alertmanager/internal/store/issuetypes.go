package store

import (
	"context"

	"av-ops-console/shared/issues"
)

// IssueTypes loads the alert-type to knowledge-base article mapping.
func (s *Store) IssueTypes(ctx context.Context) (map[string]issues.IssueType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT alert_type, kb_article
		FROM issue_types
		ORDER BY alert_type ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make(map[string]issues.IssueType)
	for rows.Next() {
		var t issues.IssueType
		if err := rows.Scan(&t.IDAlertType, &t.KBArticle); err != nil {
			return nil, err
		}
		types[t.IDAlertType] = t
	}
	return types, rows.Err()
}
