package view

import (
	"testing"
	"time"

	"av-ops-console/shared/issues"
)

func TestPartitionSuppressesYoungAlerts(t *testing.T) {
	now := time.Now()
	young := issueForRoom("ITB-110", "ITB 110",
		issues.Alert{ID: "a", Type: "Offline", Start: now.Add(-30 * time.Second), Device: issues.Device{Name: "ITB-110-PROJ"}},
	)
	ack, unack := Partition([]issues.Issue{young}, now)
	if len(ack) != 0 || len(unack) != 0 {
		t.Fatalf("expected 30s-old alert suppressed from both buckets, got ack=%d unack=%d", len(ack), len(unack))
	}
}

func TestPartitionRoutesByAcknowledgedTime(t *testing.T) {
	now := time.Now()
	aged := issueForRoom("ITB-110", "ITB 110",
		issues.Alert{ID: "a", Type: "Offline", Start: now.Add(-120 * time.Second), Device: issues.Device{Name: "ITB-110-PROJ"}},
	)
	ack, unack := Partition([]issues.Issue{aged}, now)
	if len(ack) != 0 || len(unack) != 1 {
		t.Fatalf("expected unacknowledged bucket, got ack=%d unack=%d", len(ack), len(unack))
	}

	when := now.Add(-time.Minute)
	aged.AcknowledgedTime = &when
	ack, unack = Partition([]issues.Issue{aged}, now)
	if len(ack) != 1 || len(unack) != 0 {
		t.Fatalf("expected acknowledged bucket, got ack=%d unack=%d", len(ack), len(unack))
	}
}

func TestPartitionIgnoresResolvedAlertAge(t *testing.T) {
	now := time.Now()
	ended := now.Add(-time.Minute)
	issue := issueForRoom("ITB-110", "ITB 110",
		issues.Alert{ID: "a", Type: "Offline", Start: now.Add(-time.Hour), End: &ended, Device: issues.Device{Name: "ITB-110-PROJ"}},
		issues.Alert{ID: "b", Type: "Muted", Start: now.Add(-10 * time.Second), Device: issues.Device{Name: "ITB-110-AMP"}},
	)
	ack, unack := Partition([]issues.Issue{issue}, now)
	if len(ack) != 0 || len(unack) != 0 {
		t.Fatalf("resolved alerts must not satisfy the age threshold")
	}
}

func TestMarkMaintenance(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)

	inWindow := issueForRoom("ITB-110", "ITB 110")
	inWindow.MaintenanceStart = &start
	inWindow.MaintenanceEnd = &end

	openEnded := issueForRoom("JFSB-201", "JFSB 201")
	openEnded.MaintenanceStart = &start

	got := MarkMaintenance([]issues.Issue{inWindow, openEnded}, now)
	if !got[0].OnMaintenance {
		t.Fatalf("expected issue inside window flagged")
	}
	if got[1].OnMaintenance {
		t.Fatalf("window with missing end must never be active")
	}
}
