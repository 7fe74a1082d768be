package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"av-ops-console/alertmanager/internal/incidents"
	"av-ops-console/alertmanager/internal/store"
	"av-ops-console/shared/httpx"
	"av-ops-console/shared/issues"
	"av-ops-console/shared/logx"
)

type IssueStore interface {
	ActiveIssues(ctx context.Context) ([]issues.Issue, error)
	ActiveIssueForRoom(ctx context.Context, roomID string) (issues.Issue, error)
	IssueByID(ctx context.Context, issueID string) (issues.Issue, error)
	Acknowledge(ctx context.Context, issueID string, when *time.Time) (issues.Issue, error)
	SetStatus(ctx context.Context, issueID string, toStatus string) (issues.Issue, error)
	ForceCloseIssue(ctx context.Context, id string) (issues.Issue, error)
	LinkIncident(ctx context.Context, issueID string, incident issues.Incident) error
	Rooms(ctx context.Context) ([]issues.RoomOverview, error)
	IssueTypes(ctx context.Context) (map[string]issues.IssueType, error)
	MaintenanceForRoom(ctx context.Context, roomID string) (issues.MaintenanceInfo, error)
	RoomsInMaintenance(ctx context.Context) ([]issues.MaintenanceInfo, error)
	SetMaintenance(ctx context.Context, info issues.MaintenanceInfo) (issues.MaintenanceInfo, error)
}

type IncidentClient interface {
	CreateIncident(ctx context.Context, shortDescription string, roomID string) (issues.Incident, error)
	LookupIncident(ctx context.Context, number string) (issues.Incident, error)
}

type IssueCache interface {
	All() []issues.Issue
	ForRoom(roomID string) (issues.Issue, bool)
	Put(issue issues.Issue)
}

type Handlers struct {
	Store     IssueStore
	Cache     IssueCache
	Incidents IncidentClient
	Log       logx.Logger
}

// Register wires the API route table onto a mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/issues", h.Issues)
	mux.HandleFunc("PUT /api/v1/issues/{issueID}/linkIncident", h.LinkIncident)
	mux.HandleFunc("PUT /api/v1/issues/{issueID}/createIncident", h.CreateIncident)
	mux.HandleFunc("PUT /api/v1/issues/{issueID}/closeIssue", h.CloseIssue)
	mux.HandleFunc("PUT /api/v1/issues/{issueID}/acknowledgeIssue", h.AcknowledgeIssue)
	mux.HandleFunc("PUT /api/v1/issues/{issueID}/unacknowledgeIssue", h.UnacknowledgeIssue)
	mux.HandleFunc("PUT /api/v1/issues/{issueID}/setStatus", h.SetStatus)
	mux.HandleFunc("GET /api/v1/maintenance", h.RoomsInMaintenance)
	mux.HandleFunc("GET /api/v1/maintenance/{roomID}", h.RoomMaintenanceInfo)
	mux.HandleFunc("PUT /api/v1/maintenance/{roomID}", h.SetMaintenanceInfo)
	mux.HandleFunc("GET /api/v1/rooms", h.Rooms)
	mux.HandleFunc("GET /api/v1/issuetype", h.IssueTypes)
	mux.HandleFunc("PUT /api/v1/commands/closeIssue/{id}", h.CloseIssueByRoom)
}

// Issues returns every open issue, or the open issue for one room
// when the roomID query parameter is set. The issue set is served from
// the in-memory cache.
func (h *Handlers) Issues(w http.ResponseWriter, r *http.Request) {
	if roomID := r.URL.Query().Get("roomID"); roomID != "" {
		issue, ok := h.Cache.ForRoom(roomID)
		if !ok {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "no active issue for room", nil)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, issue)
		return
	}
	list := h.Cache.All()
	if list == nil {
		list = []issues.Issue{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handlers) AcknowledgeIssue(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	h.acknowledge(w, r, &now)
}

func (h *Handlers) UnacknowledgeIssue(w http.ResponseWriter, r *http.Request) {
	h.acknowledge(w, r, nil)
}

func (h *Handlers) acknowledge(w http.ResponseWriter, r *http.Request, when *time.Time) {
	issueID := r.PathValue("issueID")
	issue, err := h.Store.Acknowledge(r.Context(), issueID, when)
	if errors.Is(err, issues.ErrIssueNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "issue not found", nil)
		return
	}
	if err != nil {
		h.internal(w, r, "acknowledge failed", err)
		return
	}
	h.Cache.Put(issue)
	httpx.WriteJSON(w, http.StatusOK, issue)
}

func (h *Handlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	issueID := r.PathValue("issueID")
	toStatus := r.URL.Query().Get("status")
	if toStatus == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "status query parameter is required", nil)
		return
	}
	issue, err := h.Store.SetStatus(r.Context(), issueID, toStatus)
	if errors.Is(err, issues.ErrIssueNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "issue not found", nil)
		return
	}
	if errors.Is(err, store.ErrInvalidStatusTransition) {
		httpx.WriteError(w, r, http.StatusConflict, "FAILED_PRECONDITION", "status transition not allowed", nil)
		return
	}
	if err != nil {
		h.internal(w, r, "set status failed", err)
		return
	}
	h.Cache.Put(issue)
	httpx.WriteJSON(w, http.StatusOK, issue)
}

func (h *Handlers) LinkIncident(w http.ResponseWriter, r *http.Request) {
	issueID := r.PathValue("issueID")
	incName := r.URL.Query().Get("incName")
	if incName == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "incName query parameter is required", nil)
		return
	}
	if h.Incidents == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "ticketing not configured", nil)
		return
	}

	incident, err := h.Incidents.LookupIncident(r.Context(), incName)
	if errors.Is(err, incidents.ErrIncidentNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "incident not found", nil)
		return
	}
	if err != nil {
		h.internal(w, r, "incident lookup failed", err)
		return
	}
	h.attachIncident(w, r, issueID, incident)
}

func (h *Handlers) CreateIncident(w http.ResponseWriter, r *http.Request) {
	issueID := r.PathValue("issueID")
	shortDescription := r.URL.Query().Get("shortDescription")
	if shortDescription == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "shortDescription query parameter is required", nil)
		return
	}
	if h.Incidents == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "ticketing not configured", nil)
		return
	}

	issue, err := h.Store.IssueByID(r.Context(), issueID)
	if errors.Is(err, issues.ErrIssueNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "issue not found", nil)
		return
	}
	if err != nil {
		h.internal(w, r, "issue load failed", err)
		return
	}

	incident, err := h.Incidents.CreateIncident(r.Context(), shortDescription, issue.Room.ID)
	if err != nil {
		h.internal(w, r, "incident create failed", err)
		return
	}
	h.attachIncident(w, r, issueID, incident)
}

func (h *Handlers) attachIncident(w http.ResponseWriter, r *http.Request, issueID string, incident issues.Incident) {
	if err := h.Store.LinkIncident(r.Context(), issueID, incident); err != nil {
		h.internal(w, r, "incident link failed", err)
		return
	}
	issue, err := h.Store.IssueByID(r.Context(), issueID)
	if err != nil {
		h.internal(w, r, "issue reload failed", err)
		return
	}
	h.Cache.Put(issue)
	httpx.WriteJSON(w, http.StatusOK, issue)
}

func (h *Handlers) CloseIssue(w http.ResponseWriter, r *http.Request) {
	h.forceClose(w, r, r.PathValue("issueID"))
}

// CloseIssueByRoom force-closes by room id or issue id, matching the
// operator command surface.
func (h *Handlers) CloseIssueByRoom(w http.ResponseWriter, r *http.Request) {
	h.forceClose(w, r, r.PathValue("id"))
}

func (h *Handlers) forceClose(w http.ResponseWriter, r *http.Request, id string) {
	issue, err := h.Store.ForceCloseIssue(r.Context(), id)
	if errors.Is(err, issues.ErrNoActiveIssue) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "no active issue", nil)
		return
	}
	if err != nil {
		h.internal(w, r, "close failed", err)
		return
	}
	h.Cache.Put(issue)
	httpx.WriteJSON(w, http.StatusOK, issue)
}

func (h *Handlers) Rooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.Store.Rooms(r.Context())
	if err != nil {
		h.internal(w, r, "rooms load failed", err)
		return
	}
	if rooms == nil {
		rooms = []issues.RoomOverview{}
	}
	httpx.WriteJSON(w, http.StatusOK, rooms)
}

func (h *Handlers) IssueTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.IssueTypes(r.Context())
	if err != nil {
		h.internal(w, r, "issue types load failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"IssueType": types})
}

func (h *Handlers) RoomsInMaintenance(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.RoomsInMaintenance(r.Context())
	if err != nil {
		h.internal(w, r, "maintenance list failed", err)
		return
	}
	if list == nil {
		list = []issues.MaintenanceInfo{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handlers) RoomMaintenanceInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.Store.MaintenanceForRoom(r.Context(), r.PathValue("roomID"))
	if err != nil {
		h.internal(w, r, "maintenance load failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, info)
}

// SetMaintenanceInfo sets or clears a room's window. Absent bounds
// disable maintenance; when both bounds are present end must be after
// start.
func (h *Handlers) SetMaintenanceInfo(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")
	var info issues.MaintenanceInfo
	if err := httpx.DecodeJSON(r, &info); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid maintenance body", nil)
		return
	}
	info.RoomID = roomID
	if info.Enabled() && !info.End.After(*info.Start) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "maintenance end must be after start", nil)
		return
	}

	saved, err := h.Store.SetMaintenance(r.Context(), info)
	if err != nil {
		h.internal(w, r, "maintenance save failed", err)
		return
	}
	if issue, err := h.Store.ActiveIssueForRoom(r.Context(), roomID); err == nil {
		h.Cache.Put(issue)
	}
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (h *Handlers) internal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.Log.Error(r.Context(), "handler_error", msg, slog.String("error", err.Error()))
	httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", msg, nil)
}
