package view

import (
	"time"

	"av-ops-console/shared/issues"
)

// SuppressionThreshold is how long an alert must be active before its
// issue surfaces on the dashboard at all. Very fresh alerts frequently
// self-resolve and would only generate noise.
const SuppressionThreshold = 2 * time.Minute

// Partition splits issues into acknowledged and unacknowledged sets.
// An issue appears in a bucket only when at least one of its alerts
// has been active for SuppressionThreshold or longer at now; younger
// issues are dropped from both. Which bucket an eligible issue lands
// in depends solely on whether AcknowledgedTime is set.
func Partition(in []issues.Issue, now time.Time) (acknowledged, unacknowledged []issues.Issue) {
	acknowledged = make([]issues.Issue, 0, len(in))
	unacknowledged = make([]issues.Issue, 0, len(in))
	for _, issue := range in {
		if !hasAgedAlert(issue, now) {
			continue
		}
		if issue.AcknowledgedTime != nil {
			acknowledged = append(acknowledged, issue)
		} else {
			unacknowledged = append(unacknowledged, issue)
		}
	}
	return acknowledged, unacknowledged
}

func hasAgedAlert(issue issues.Issue, now time.Time) bool {
	for _, alert := range issue.Alerts {
		if !alert.Active() {
			continue
		}
		if now.Sub(alert.Start) >= SuppressionThreshold {
			return true
		}
	}
	return false
}
