package view

import (
	"testing"
	"time"

	"av-ops-console/shared/issues"
)

func alertAt(id, deviceName, alertType string, start time.Time, end *time.Time) issues.Alert {
	return issues.Alert{
		ID:    id,
		Type:  alertType,
		Start: start,
		End:   end,
		Device: issues.Device{
			ID:   deviceName,
			Name: deviceName,
		},
	}
}

func TestActiveAlertCount(t *testing.T) {
	now := time.Now()
	ended := now.Add(-time.Minute)

	issue := issues.Issue{
		Alerts: map[string]issues.Alert{
			"a": alertAt("a", "ITB-110-PROJ", "Offline", now.Add(-time.Hour), nil),
			"b": alertAt("b", "ITB-110-PC", "Offline", now.Add(-time.Hour), &ended),
		},
	}
	if got := ActiveAlertCount(issue); got != 1 {
		t.Fatalf("expected 1 active alert, got %d", got)
	}
	if got := ActiveAlertCount(issues.Issue{}); got != 0 {
		t.Fatalf("expected 0 for issue without alerts, got %d", got)
	}
}

func TestAlertOverview(t *testing.T) {
	now := time.Now()
	ended := now.Add(-time.Minute)

	issue := issues.Issue{
		Alerts: map[string]issues.Alert{
			"1": alertAt("1", "ITB-110-PROJ", "A", now, nil),
			"2": alertAt("2", "ITB-110-PC", "A", now, nil),
			"3": alertAt("3", "ITB-110-DISP", "B", now, nil),
			"4": alertAt("4", "ITB-110-CAM", "C", now, &ended),
		},
	}
	want := "A (PROJ, PC), B (DISP)"
	if got := AlertOverview(issue); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestAlertOverviewSingle(t *testing.T) {
	issue := issues.Issue{
		Alerts: map[string]issues.Alert{
			"1": alertAt("1", "ITB-110-PROJ", "Offline", time.Now().Add(-5*time.Minute), nil),
		},
	}
	if got := AlertOverview(issue); got != "Offline (PROJ)" {
		t.Fatalf("expected %q, got %q", "Offline (PROJ)", got)
	}
}

func TestAlertOverviewNoAlertMap(t *testing.T) {
	if got := AlertOverview(issues.Issue{}); got != "No alerts" {
		t.Fatalf("expected %q, got %q", "No alerts", got)
	}
}

func TestAlertOverviewLongDeviceName(t *testing.T) {
	issue := issues.Issue{
		Alerts: map[string]issues.Alert{
			"1": alertAt("1", "ITB-110-CP1-TOUCH", "Offline", time.Now(), nil),
		},
	}
	if got := AlertOverview(issue); got != "Offline (ITB-110-CP1-TOUCH)" {
		t.Fatalf("expected full device name for 4-segment names, got %q", got)
	}
}
