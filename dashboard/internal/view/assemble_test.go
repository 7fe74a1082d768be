package view

import (
	"testing"
	"time"

	"av-ops-console/shared/issues"
)

func TestAssembleSingleOfflineAlert(t *testing.T) {
	now := time.Now()
	issue := issueForRoom("ITB-110", "ITB 110",
		issues.Alert{ID: "a1", Type: "Offline", Start: now.Add(-5 * time.Minute), Device: issues.Device{ID: "ITB-110-PROJ", Name: "ITB-110-PROJ"}},
	)

	page := Assemble([]issues.Issue{issue}, now, Query{})

	if page.TotalIssues != 1 || page.TotalAlerts != 1 {
		t.Fatalf("expected totals 1/1, got issues=%d alerts=%d", page.TotalIssues, page.TotalAlerts)
	}
	if len(page.Acknowledged) != 0 {
		t.Fatalf("expected no acknowledged rows, got %d", len(page.Acknowledged))
	}
	if len(page.Unacknowledged) != 1 {
		t.Fatalf("expected 1 unacknowledged row, got %d", len(page.Unacknowledged))
	}
	row := page.Unacknowledged[0]
	if row.Room.ID != "ITB-110" {
		t.Fatalf("expected room ITB-110, got %q", row.Room.ID)
	}
	if row.ActiveAlerts != 1 {
		t.Fatalf("expected 1 active alert on the row, got %d", row.ActiveAlerts)
	}
	if row.AlertOverview != "Offline (PROJ)" {
		t.Fatalf("expected overview %q, got %q", "Offline (PROJ)", row.AlertOverview)
	}
	if row.OnMaintenance {
		t.Fatalf("expected room not in maintenance")
	}
}

func TestAssembleTotalsIgnoreFilter(t *testing.T) {
	now := time.Now()
	in := []issues.Issue{
		issueForRoom("ITB-110", "ITB 110",
			issues.Alert{ID: "a1", Type: "Offline", Start: now.Add(-5 * time.Minute), Device: issues.Device{Name: "ITB-110-PROJ"}},
		),
		issueForRoom("JFSB-201", "JFSB 201",
			issues.Alert{ID: "a2", Type: "Offline", Start: now.Add(-5 * time.Minute), Device: issues.Device{Name: "JFSB-201-DISP"}},
		),
	}

	page := Assemble(in, now, Query{Filter: Filter{Query: "ITB"}})

	if page.TotalIssues != 2 || page.TotalAlerts != 2 {
		t.Fatalf("header totals must cover the whole snapshot, got issues=%d alerts=%d", page.TotalIssues, page.TotalAlerts)
	}
	if len(page.Unacknowledged) != 1 || page.Unacknowledged[0].Room.ID != "ITB-110" {
		t.Fatalf("expected only the ITB row after filtering, got %v", page.Unacknowledged)
	}
}

func TestAssembleRoutesAcknowledgedIssues(t *testing.T) {
	now := time.Now()
	issue := issueForRoom("ITB-110", "ITB 110",
		issues.Alert{ID: "a1", Type: "Offline", Start: now.Add(-5 * time.Minute), Device: issues.Device{Name: "ITB-110-PROJ"}},
	)
	when := now.Add(-time.Minute)
	issue.AcknowledgedTime = &when

	page := Assemble([]issues.Issue{issue}, now, Query{})

	if len(page.Acknowledged) != 1 || len(page.Unacknowledged) != 0 {
		t.Fatalf("expected acknowledged bucket, got ack=%d unack=%d", len(page.Acknowledged), len(page.Unacknowledged))
	}
}

func TestAssembleHidesMaintenanceRooms(t *testing.T) {
	now := time.Now()
	issue := issueForRoom("ITB-110", "ITB 110",
		issues.Alert{ID: "a1", Type: "Offline", Start: now.Add(-5 * time.Minute), Device: issues.Device{Name: "ITB-110-PROJ"}},
	)
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)
	issue.MaintenanceStart = &start
	issue.MaintenanceEnd = &end

	page := Assemble([]issues.Issue{issue}, now, Query{})
	if len(page.Acknowledged)+len(page.Unacknowledged) != 0 {
		t.Fatalf("expected maintenance room hidden by default")
	}

	page = Assemble([]issues.Issue{issue}, now, Query{Filter: Filter{ShowMaintenance: true}})
	if len(page.Unacknowledged) != 1 || !page.Unacknowledged[0].OnMaintenance {
		t.Fatalf("expected maintenance room shown and flagged, got %v", page.Unacknowledged)
	}
}
