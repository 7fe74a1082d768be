package view

import (
	"testing"
	"time"

	"av-ops-console/shared/issues"
)

func issueForRoom(roomID, roomName string, alerts ...issues.Alert) issues.Issue {
	m := make(map[string]issues.Alert, len(alerts))
	for _, a := range alerts {
		m[a.ID] = a
	}
	return issues.Issue{
		ID:     roomID,
		Room:   issues.Room{ID: roomID, Name: roomName},
		Start:  time.Now().Add(-time.Hour),
		Alerts: m,
	}
}

func TestFilterEmptyQueryMatchesAll(t *testing.T) {
	in := []issues.Issue{
		issueForRoom("ITB-110", "ITB 110"),
		issueForRoom("JFSB-201", "JFSB 201"),
	}
	f := Filter{Query: "", ShowMaintenance: true}
	if got := f.Apply(in); len(got) != 2 {
		t.Fatalf("expected all issues for empty query, got %d", len(got))
	}
}

func TestFilterInclude(t *testing.T) {
	in := []issues.Issue{
		issueForRoom("ITB-110", "ITB 110"),
		issueForRoom("JFSB-201", "JFSB 201"),
	}
	f := Filter{Query: "itb", ShowMaintenance: true}
	got := f.Apply(in)
	if len(got) != 1 || got[0].Room.ID != "ITB-110" {
		t.Fatalf("expected only ITB-110, got %v", got)
	}
}

func TestFilterExclude(t *testing.T) {
	in := []issues.Issue{
		issueForRoom("ITB-110", "ITB 110"),
		issueForRoom("JFSB-201", "JFSB 201"),
	}
	f := Filter{Query: "-itb", ShowMaintenance: true}
	got := f.Apply(in)
	if len(got) != 1 || got[0].Room.ID != "JFSB-201" {
		t.Fatalf("expected only JFSB-201, got %v", got)
	}
}

func TestFilterMatchesAlertFields(t *testing.T) {
	ended := time.Now()
	issue := issueForRoom("ITB-110", "ITB 110",
		issues.Alert{ID: "a", Type: "Offline", Device: issues.Device{ID: "ITB-110-PROJ", Name: "ITB-110-PROJ"}, End: &ended},
	)
	f := Filter{Query: "offline", ShowMaintenance: true}
	if !f.Matches(issue) {
		t.Fatalf("expected resolved alert fields to stay searchable")
	}
}

func TestFilterMultiTokenAnd(t *testing.T) {
	in := []issues.Issue{
		issueForRoom("ITB-110", "ITB 110",
			issues.Alert{ID: "a", Type: "Offline", Device: issues.Device{ID: "ITB-110-PROJ", Name: "ITB-110-PROJ"}}),
		issueForRoom("ITB-220", "ITB 220",
			issues.Alert{ID: "b", Type: "Muted", Device: issues.Device{ID: "ITB-220-AMP", Name: "ITB-220-AMP"}}),
	}
	f := Filter{Query: "itb offline", ShowMaintenance: true}
	got := f.Apply(in)
	if len(got) != 1 || got[0].Room.ID != "ITB-110" {
		t.Fatalf("expected tokens to narrow jointly, got %v", got)
	}
}

func TestFilterMaintenanceSwitch(t *testing.T) {
	onMaint := issueForRoom("ITB-110", "ITB 110")
	onMaint.OnMaintenance = true
	in := []issues.Issue{onMaint, issueForRoom("JFSB-201", "JFSB 201")}

	hidden := Filter{Query: "", ShowMaintenance: false}.Apply(in)
	if len(hidden) != 1 || hidden[0].Room.ID != "JFSB-201" {
		t.Fatalf("expected maintenance issue hidden, got %v", hidden)
	}

	// the switch wins even when the query names the room
	f := Filter{Query: "itb", ShowMaintenance: false}
	if len(f.Apply(in)) != 0 {
		t.Fatalf("expected maintenance issue hidden regardless of query")
	}

	shown := Filter{Query: "", ShowMaintenance: true}.Apply(in)
	if len(shown) != 2 {
		t.Fatalf("expected both issues with maintenance shown, got %d", len(shown))
	}
}

func TestFilterIncludeExcludeComplement(t *testing.T) {
	in := []issues.Issue{
		issueForRoom("ITB-110", "ITB 110"),
		issueForRoom("JFSB-201", "JFSB 201"),
		issueForRoom("TMCB-310", "TMCB 310"),
	}
	include := Filter{Query: "jfsb", ShowMaintenance: true}.Apply(in)
	exclude := Filter{Query: "-jfsb", ShowMaintenance: true}.Apply(in)
	if len(include)+len(exclude) != len(in) {
		t.Fatalf("include and exclude should partition the set: %d + %d != %d",
			len(include), len(exclude), len(in))
	}
}

func TestFilterTokenCapDropsExtras(t *testing.T) {
	in := []issues.Issue{
		issueForRoom("ITB-110", "ITB 110"),
		issueForRoom("JFSB-201", "JFSB 201"),
	}

	// The 11th token would exclude ITB-110 if it counted; only the
	// first ten are kept, and none of those are lumped together.
	query := "t1 t2 t3 t4 t5 t6 t7 t8 t9 t10 -itb"
	got := Filter{Query: query, ShowMaintenance: true}.Apply(in)
	if len(got) != 0 {
		t.Fatalf("expected nonsense tokens to match nothing, got %d", len(got))
	}

	query = "itb itb itb itb itb itb itb itb itb itb -itb"
	got = Filter{Query: query, ShowMaintenance: true}.Apply(in)
	if len(got) != 1 || got[0].Room.ID != "ITB-110" {
		t.Fatalf("expected the capped query to keep ITB-110, got %v", got)
	}
}
