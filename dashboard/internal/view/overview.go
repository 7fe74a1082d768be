package view

import (
	"sort"
	"strings"

	"av-ops-console/shared/issues"
)

// ActiveAlertCount counts the alerts on an issue that have not ended.
// An issue with no alert map counts as zero.
func ActiveAlertCount(issue issues.Issue) int {
	count := 0
	for _, alert := range issue.Alerts {
		if alert.Active() {
			count++
		}
	}
	return count
}

// AlertOverview summarizes the active alerts on an issue as
// "type (device, device), type (device)". Resolved alerts are skipped.
// Alerts are visited in id order so the output is stable for a given
// alert map; types appear in first-seen order.
func AlertOverview(issue issues.Issue) string {
	if issue.Alerts == nil {
		return "No alerts"
	}

	typeOrder := make([]string, 0, 4)
	devicesByType := make(map[string][]string)
	for _, id := range sortedAlertIDs(issue.Alerts) {
		alert := issue.Alerts[id]
		if !alert.Active() {
			continue
		}
		if _, seen := devicesByType[alert.Type]; !seen {
			typeOrder = append(typeOrder, alert.Type)
		}
		devicesByType[alert.Type] = append(devicesByType[alert.Type], alert.Device.ShortName())
	}

	parts := make([]string, 0, len(typeOrder))
	for _, alertType := range typeOrder {
		parts = append(parts, alertType+" ("+strings.Join(devicesByType[alertType], ", ")+")")
	}
	return strings.Join(parts, ", ")
}

func sortedAlertIDs(alerts map[string]issues.Alert) []string {
	ids := make([]string, 0, len(alerts))
	for id := range alerts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
