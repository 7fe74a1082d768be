package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"av-ops-console/alertmanager/internal/incidents"
	"av-ops-console/alertmanager/internal/store"
	"av-ops-console/shared/issues"
	"av-ops-console/shared/logx"
	"av-ops-console/shared/status"
)

type fakeStore struct {
	issues      map[string]issues.Issue
	maintenance map[string]issues.MaintenanceInfo
	linked      []issues.Incident
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		issues:      make(map[string]issues.Issue),
		maintenance: make(map[string]issues.MaintenanceInfo),
	}
}

func (f *fakeStore) ActiveIssues(ctx context.Context) ([]issues.Issue, error) {
	var list []issues.Issue
	for _, issue := range f.issues {
		if issue.Active() {
			list = append(list, issue)
		}
	}
	return list, nil
}

func (f *fakeStore) ActiveIssueForRoom(ctx context.Context, roomID string) (issues.Issue, error) {
	for _, issue := range f.issues {
		if issue.Room.ID == roomID && issue.Active() {
			return issue, nil
		}
	}
	return issues.Issue{}, issues.ErrNoActiveIssue
}

func (f *fakeStore) IssueByID(ctx context.Context, issueID string) (issues.Issue, error) {
	issue, ok := f.issues[issueID]
	if !ok {
		return issues.Issue{}, issues.ErrIssueNotFound
	}
	return issue, nil
}

func (f *fakeStore) Acknowledge(ctx context.Context, issueID string, when *time.Time) (issues.Issue, error) {
	issue, ok := f.issues[issueID]
	if !ok {
		return issues.Issue{}, issues.ErrIssueNotFound
	}
	issue.AcknowledgedTime = when
	f.issues[issueID] = issue
	return issue, nil
}

func (f *fakeStore) SetStatus(ctx context.Context, issueID string, toStatus string) (issues.Issue, error) {
	issue, ok := f.issues[issueID]
	if !ok {
		return issues.Issue{}, issues.ErrIssueNotFound
	}
	if !status.CanTransition(issue.Status, toStatus) {
		return issues.Issue{}, store.ErrInvalidStatusTransition
	}
	issue.Status = status.NormalizeIssueStatus(toStatus)
	f.issues[issueID] = issue
	return issue, nil
}

func (f *fakeStore) ForceCloseIssue(ctx context.Context, id string) (issues.Issue, error) {
	for key, issue := range f.issues {
		if (issue.ID == id || issue.Room.ID == id) && issue.Active() {
			now := time.Now()
			issue.End = &now
			f.issues[key] = issue
			return issue, nil
		}
	}
	return issues.Issue{}, issues.ErrNoActiveIssue
}

func (f *fakeStore) LinkIncident(ctx context.Context, issueID string, incident issues.Incident) error {
	issue := f.issues[issueID]
	if issue.Incidents == nil {
		issue.Incidents = make(map[string]issues.Incident)
	}
	issue.Incidents[incident.ID] = incident
	f.issues[issueID] = issue
	f.linked = append(f.linked, incident)
	return nil
}

func (f *fakeStore) Rooms(ctx context.Context) ([]issues.RoomOverview, error) {
	return []issues.RoomOverview{}, nil
}

func (f *fakeStore) IssueTypes(ctx context.Context) (map[string]issues.IssueType, error) {
	return map[string]issues.IssueType{
		"Offline": {IDAlertType: "Offline", KBArticle: "KB0010001"},
	}, nil
}

func (f *fakeStore) MaintenanceForRoom(ctx context.Context, roomID string) (issues.MaintenanceInfo, error) {
	return f.maintenance[roomID], nil
}

func (f *fakeStore) RoomsInMaintenance(ctx context.Context) ([]issues.MaintenanceInfo, error) {
	return nil, nil
}

func (f *fakeStore) SetMaintenance(ctx context.Context, info issues.MaintenanceInfo) (issues.MaintenanceInfo, error) {
	f.maintenance[info.RoomID] = info
	return info, nil
}

type fakeCache struct {
	byID map[string]issues.Issue
}

func newFakeCache() *fakeCache {
	return &fakeCache{byID: make(map[string]issues.Issue)}
}

func (f *fakeCache) All() []issues.Issue {
	var list []issues.Issue
	for _, issue := range f.byID {
		list = append(list, issue)
	}
	return list
}

func (f *fakeCache) ForRoom(roomID string) (issues.Issue, bool) {
	for _, issue := range f.byID {
		if issue.Room.ID == roomID {
			return issue, true
		}
	}
	return issues.Issue{}, false
}

func (f *fakeCache) Put(issue issues.Issue) {
	if !issue.Active() {
		delete(f.byID, issue.ID)
		return
	}
	f.byID[issue.ID] = issue
}

type fakeIncidents struct {
	known map[string]issues.Incident
}

func (f *fakeIncidents) CreateIncident(ctx context.Context, shortDescription string, roomID string) (issues.Incident, error) {
	return issues.Incident{ID: "sys1", Name: "INC0012345", ShortDescription: shortDescription}, nil
}

func (f *fakeIncidents) LookupIncident(ctx context.Context, number string) (issues.Incident, error) {
	inc, ok := f.known[number]
	if !ok {
		return issues.Incident{}, incidents.ErrIncidentNotFound
	}
	return inc, nil
}

func newTestServer(t *testing.T, st *fakeStore, cache *fakeCache, inc *fakeIncidents) *httptest.Server {
	t.Helper()
	if inc == nil {
		inc = &fakeIncidents{known: map[string]issues.Incident{}}
	}
	h := &Handlers{
		Store:     st,
		Cache:     cache,
		Incidents: inc,
		Log:       logx.New("handlers-test", "test", "", "error"),
	}
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func put(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func seedIssue(st *fakeStore, cache *fakeCache) issues.Issue {
	issue := issues.Issue{
		ID:     "iss1",
		Room:   issues.Room{ID: "ITB-110", Name: "ITB 110"},
		Start:  time.Now().Add(-time.Hour),
		Status: status.IssueStatusNew,
	}
	st.issues[issue.ID] = issue
	cache.Put(issue)
	return issue
}

func TestGetIssues(t *testing.T) {
	st := newFakeStore()
	cache := newFakeCache()
	seedIssue(st, cache)
	srv := newTestServer(t, st, cache, nil)

	resp, err := http.Get(srv.URL + "/api/v1/issues")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	var list []issues.Issue
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "iss1" {
		t.Fatalf("unexpected issues %v", list)
	}
}

func TestGetIssueByRoom(t *testing.T) {
	st := newFakeStore()
	cache := newFakeCache()
	seedIssue(st, cache)
	srv := newTestServer(t, st, cache, nil)

	resp, err := http.Get(srv.URL + "/api/v1/issues?roomID=ITB-110")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/api/v1/issues?roomID=NOPE-101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown room, got %d", resp2.StatusCode)
	}
}

func TestAcknowledgeRoundTrip(t *testing.T) {
	st := newFakeStore()
	cache := newFakeCache()
	seedIssue(st, cache)
	srv := newTestServer(t, st, cache, nil)

	resp := put(t, srv.URL+"/api/v1/issues/iss1/acknowledgeIssue")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if st.issues["iss1"].AcknowledgedTime == nil {
		t.Fatalf("expected acknowledged time set")
	}

	resp = put(t, srv.URL+"/api/v1/issues/iss1/unacknowledgeIssue")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if st.issues["iss1"].AcknowledgedTime != nil {
		t.Fatalf("expected acknowledged time cleared")
	}
}

func TestSetStatusRejectsBadTransition(t *testing.T) {
	st := newFakeStore()
	cache := newFakeCache()
	seedIssue(st, cache)
	srv := newTestServer(t, st, cache, nil)

	resp := put(t, srv.URL+"/api/v1/issues/iss1/setStatus?status=acknowledged")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	resp = put(t, srv.URL+"/api/v1/issues/iss1/setStatus?status=resolved")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for disallowed transition, got %d", resp.StatusCode)
	}
}

func TestLinkIncident(t *testing.T) {
	st := newFakeStore()
	cache := newFakeCache()
	seedIssue(st, cache)
	inc := &fakeIncidents{known: map[string]issues.Incident{
		"INC0012345": {ID: "sys1", Name: "INC0012345"},
	}}
	srv := newTestServer(t, st, cache, inc)

	resp := put(t, srv.URL+"/api/v1/issues/iss1/linkIncident?incName=INC0012345")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if len(st.linked) != 1 || st.linked[0].Name != "INC0012345" {
		t.Fatalf("expected incident linked, got %v", st.linked)
	}

	resp = put(t, srv.URL+"/api/v1/issues/iss1/linkIncident?incName=INC9999999")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown incident, got %d", resp.StatusCode)
	}
}

func TestCreateIncident(t *testing.T) {
	st := newFakeStore()
	cache := newFakeCache()
	seedIssue(st, cache)
	srv := newTestServer(t, st, cache, nil)

	resp := put(t, srv.URL+"/api/v1/issues/iss1/createIncident?shortDescription=projector+offline")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if len(st.linked) != 1 || st.linked[0].ShortDescription != "projector offline" {
		t.Fatalf("expected created incident linked, got %v", st.linked)
	}
}

func TestCloseIssueCommand(t *testing.T) {
	st := newFakeStore()
	cache := newFakeCache()
	seedIssue(st, cache)
	srv := newTestServer(t, st, cache, nil)

	resp := put(t, srv.URL+"/api/v1/commands/closeIssue/ITB-110")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if st.issues["iss1"].Active() {
		t.Fatalf("expected issue closed")
	}
	if _, ok := cache.ForRoom("ITB-110"); ok {
		t.Fatalf("expected closed issue dropped from cache")
	}
}

func TestSetMaintenanceValidation(t *testing.T) {
	st := newFakeStore()
	cache := newFakeCache()
	srv := newTestServer(t, st, cache, nil)

	start := time.Now().Add(2 * time.Hour)
	end := time.Now().Add(time.Hour)
	body, _ := json.Marshal(issues.MaintenanceInfo{Start: &start, End: &end})
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/maintenance/ITB-110", bytes.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted window, got %d", resp.StatusCode)
	}

	// clearing the window is always allowed
	body, _ = json.Marshal(issues.MaintenanceInfo{})
	req, _ = http.NewRequest(http.MethodPut, srv.URL+"/api/v1/maintenance/ITB-110", bytes.NewReader(body))
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for cleared window, got %d", resp2.StatusCode)
	}
}

func TestIssueTypesEnvelope(t *testing.T) {
	st := newFakeStore()
	srv := newTestServer(t, st, newFakeCache(), nil)

	resp, err := http.Get(srv.URL + "/api/v1/issuetype")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		IssueType map[string]issues.IssueType `json:"IssueType"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.IssueType["Offline"].KBArticle != "KB0010001" {
		t.Fatalf("unexpected issue types %v", out)
	}
}
