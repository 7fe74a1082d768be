package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"av-ops-console/shared/config"
	"av-ops-console/shared/issues"
	"av-ops-console/shared/logx"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{APIBaseURL: srv.URL, RequestTimeout: 5 * time.Second}
	c, err := New(cfg, logx.New("client-test", "test", "", "error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestIssuesReconstitutesMaps(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/issues" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]issues.Issue{{
			ID:   "iss1",
			Room: issues.Room{ID: "ITB-110", Name: "ITB 110"},
			Alerts: map[string]issues.Alert{
				"a1": {ID: "a1", IssueID: "iss1", Type: "Offline"},
			},
		}})
	}))

	got := c.Issues(context.Background())
	if len(got) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(got))
	}
	if _, ok := got[0].Alerts["a1"]; !ok {
		t.Fatalf("expected alert map keyed by id, got %v", got[0].Alerts)
	}
}

func TestIssuesDerivesMaintenanceFlag(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]issues.Issue{{
			ID:               "iss1",
			Room:             issues.Room{ID: "ITB-110"},
			MaintenanceStart: &start,
			MaintenanceEnd:   &end,
		}})
	}))

	got := c.Issues(context.Background())
	if !got[0].OnMaintenance {
		t.Fatalf("expected issue inside window to be flagged")
	}
}

func TestIssuesSafeDefaultOnFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	got := c.Issues(context.Background())
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice on failure, got %v", got)
	}
}

func TestSetMaintenanceValidation(t *testing.T) {
	called := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		json.NewEncoder(w).Encode(issues.MaintenanceInfo{RoomID: "ITB-110"})
	}))

	start := time.Now().Add(2 * time.Hour)
	end := time.Now().Add(time.Hour)
	_, err := c.SetMaintenanceInfo(context.Background(), issues.MaintenanceInfo{
		RoomID: "ITB-110", Start: &start, End: &end,
	})
	if !errors.Is(err, ErrMaintenanceBounds) {
		t.Fatalf("expected ErrMaintenanceBounds, got %v", err)
	}

	pastStart := time.Now().Add(-2 * time.Hour)
	pastEnd := time.Now().Add(-time.Hour)
	_, err = c.SetMaintenanceInfo(context.Background(), issues.MaintenanceInfo{
		RoomID: "ITB-110", Start: &pastStart, End: &pastEnd,
	})
	if !errors.Is(err, ErrMaintenanceInPast) {
		t.Fatalf("expected ErrMaintenanceInPast, got %v", err)
	}

	if called {
		t.Fatalf("expected no network call for invalid windows")
	}

	// clearing the window skips validation
	if _, err := c.SetMaintenanceInfo(context.Background(), issues.MaintenanceInfo{RoomID: "ITB-110"}); err != nil {
		t.Fatalf("unexpected error clearing window: %v", err)
	}
	if !called {
		t.Fatalf("expected clear to reach the backend")
	}
}

func TestLinkIncidentPath(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/api/v1/issues/iss1/linkIncident" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("incName") != "INC0012345" {
			t.Fatalf("unexpected incName %q", r.URL.Query().Get("incName"))
		}
		json.NewEncoder(w).Encode(issues.Issue{ID: "iss1"})
	}))

	got, err := c.LinkIncident(context.Background(), "iss1", "INC0012345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "iss1" {
		t.Fatalf("expected issue back, got %v", got)
	}
}

func TestWriteFailureSurfaces(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	if err := c.AcknowledgeIssue(context.Background(), "iss1"); err == nil {
		t.Fatalf("expected error from failed acknowledge")
	}
}

func TestIssueTypesUnwrapsEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"IssueType": map[string]issues.IssueType{
				"Offline": {IDAlertType: "Offline", KBArticle: "KB0010001"},
			},
		})
	}))
	got := c.IssueTypes(context.Background())
	if got["Offline"].KBArticle != "KB0010001" {
		t.Fatalf("expected KB article, got %v", got)
	}
}
