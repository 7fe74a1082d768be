package incidents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"av-ops-console/shared/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(config.Config{
		TicketingURL:       srv.URL,
		TicketingCaller:    "av-ops-bot",
		TicketingTimeoutMS: 2000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestCreateIncident(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/now/table/incident" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.CallerID != "av-ops-bot" {
			t.Fatalf("unexpected caller %q", req.CallerID)
		}
		json.NewEncoder(w).Encode(map[string]any{"result": incidentRecord{
			SysID:            "abc123",
			Number:           "INC0012345",
			ShortDescription: req.ShortDescription,
		}})
	}))

	inc, err := c.CreateIncident(context.Background(), "projector offline in ITB-110", "ITB-110")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inc.ID != "abc123" || inc.Name != "INC0012345" {
		t.Fatalf("unexpected incident %v", inc)
	}
}

func TestLookupIncidentNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"result": []incidentRecord{}})
	}))

	_, err := c.LookupIncident(context.Background(), "INC0000000")
	if !errors.Is(err, ErrIncidentNotFound) {
		t.Fatalf("expected ErrIncidentNotFound, got %v", err)
	}
}

func TestRetriesOnServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": []incidentRecord{{SysID: "x", Number: "INC1"}}})
	}))
	defer srv.Close()

	c, err := New(config.Config{TicketingURL: srv.URL, TicketingTimeoutMS: 2000, TicketingRetryMax: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inc, err := c.LookupIncident(context.Background(), "INC1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 || inc.Name != "INC1" {
		t.Fatalf("expected retry then success, calls=%d inc=%v", calls, inc)
	}
}

func TestCircuitOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(config.Config{TicketingURL: srv.URL, TicketingTimeoutMS: 2000, TicketingRetryMax: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.LookupIncident(context.Background(), "INC1"); err == nil {
		t.Fatalf("expected error from failing backend")
	}
	_, err = c.LookupIncident(context.Background(), "INC1")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}
