package view

import (
	"time"

	"av-ops-console/shared/issues"
)

// IssueRow is one dashboard table row: the issue plus the derived
// columns the table renders directly.
type IssueRow struct {
	issues.Issue
	ActiveAlerts  int    `json:"activeAlerts"`
	AlertOverview string `json:"alertOverview"`
}

// Query captures the listing parameters of one dashboard request.
type Query struct {
	Filter    Filter
	SortKey   string
	Direction string
}

// Page is the assembled issue listing. Totals are taken before the
// filter runs so the header counts reflect the whole snapshot, not
// the filtered subset.
type Page struct {
	TotalIssues    int        `json:"totalIssues"`
	TotalAlerts    int        `json:"totalAlerts"`
	Acknowledged   []IssueRow `json:"acknowledged"`
	Unacknowledged []IssueRow `json:"unacknowledged"`
}

// Assemble runs the full listing pipeline over one snapshot: mark
// rooms in maintenance, count alerts, filter, sort, then split into
// acknowledged and unacknowledged buckets.
func Assemble(list []issues.Issue, now time.Time, q Query) Page {
	visible := MarkMaintenance(list, now)
	totalAlerts := 0
	for _, issue := range visible {
		totalAlerts += ActiveAlertCount(issue)
	}
	visible = q.Filter.Apply(visible)
	visible = Sort(visible, q.SortKey, q.Direction)
	acknowledged, unacknowledged := Partition(visible, now)
	return Page{
		TotalIssues:    len(list),
		TotalAlerts:    totalAlerts,
		Acknowledged:   rows(acknowledged),
		Unacknowledged: rows(unacknowledged),
	}
}

func rows(list []issues.Issue) []IssueRow {
	out := make([]IssueRow, len(list))
	for i, issue := range list {
		out[i] = IssueRow{
			Issue:         issue,
			ActiveAlerts:  ActiveAlertCount(issue),
			AlertOverview: AlertOverview(issue),
		}
	}
	return out
}
