package view

import (
	"time"

	"av-ops-console/shared/issues"
)

// MarkMaintenance derives the maintenance flag for every issue in a
// snapshot. The flag is recomputed from the issue's own window bounds
// on each call rather than cached, so a window opening or closing is
// picked up within one poll cycle.
func MarkMaintenance(in []issues.Issue, now time.Time) []issues.Issue {
	out := make([]issues.Issue, len(in))
	for i, issue := range in {
		window := issues.MaintenanceInfo{
			RoomID: issue.Room.ID,
			Start:  issue.MaintenanceStart,
			End:    issue.MaintenanceEnd,
		}
		issue.OnMaintenance = window.ActiveAt(now)
		out[i] = issue
	}
	return out
}
