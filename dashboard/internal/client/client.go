package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"av-ops-console/shared/config"
	"av-ops-console/shared/issues"
	"av-ops-console/shared/logx"
	"av-ops-console/shared/metricsx"
)

var (
	ErrMaintenanceBounds  = errors.New("maintenance window end must be after start")
	ErrMaintenanceInPast  = errors.New("maintenance window end must be in the future")
	ErrUnexpectedResponse = errors.New("unexpected response from alertmanager")
)

// Client talks to the alertmanager API. Read operations never fail the
// caller: transport and decode errors are logged and replaced with an
// empty result, so the dashboard always has something renderable and
// the next poll cycle can recover. Write operations return their
// errors so the operator can be told.
type Client struct {
	baseURL string
	http    *http.Client
	log     logx.Logger
}

func New(cfg config.Config, log logx.Logger) (*Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, errors.New("API_BASE_URL is required")
	}
	return &Client{
		baseURL: cfg.APIBaseURL,
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log,
	}, nil
}

// Issues fetches the full issue snapshot and derives the maintenance
// flag for each issue at the current clock.
func (c *Client) Issues(ctx context.Context) []issues.Issue {
	var out []issues.Issue
	if err := c.getJSON(ctx, "/api/v1/issues", nil, &out); err != nil {
		metricsx.IncPollFailure()
		c.log.Warn(ctx, "issues_fetch_failed", "substituting empty issue list", slog.String("error", err.Error()))
		return []issues.Issue{}
	}
	now := time.Now()
	for i := range out {
		out[i].OnMaintenance = maintenanceWindow(out[i]).ActiveAt(now)
	}
	return out
}

// IssueForRoom fetches the active issue for one room. The second
// return is false when the room has no active issue or the fetch
// failed.
func (c *Client) IssueForRoom(ctx context.Context, roomID string) (issues.Issue, bool) {
	var out issues.Issue
	params := url.Values{"roomID": []string{roomID}}
	if err := c.getJSON(ctx, "/api/v1/issues", params, &out); err != nil {
		c.log.Warn(ctx, "issue_fetch_failed", "substituting absent issue",
			slog.String("room_id", roomID), slog.String("error", err.Error()))
		return issues.Issue{}, false
	}
	if out.ID == "" {
		return issues.Issue{}, false
	}
	out.OnMaintenance = maintenanceWindow(out).ActiveAt(time.Now())
	return out, true
}

func (c *Client) Rooms(ctx context.Context) []issues.RoomOverview {
	var out []issues.RoomOverview
	if err := c.getJSON(ctx, "/api/v1/rooms", nil, &out); err != nil {
		c.log.Warn(ctx, "rooms_fetch_failed", "substituting empty room list", slog.String("error", err.Error()))
		return []issues.RoomOverview{}
	}
	return out
}

// IssueTypes fetches the alert-type to KB-article mapping.
func (c *Client) IssueTypes(ctx context.Context) map[string]issues.IssueType {
	var out struct {
		IssueType map[string]issues.IssueType `json:"IssueType"`
	}
	if err := c.getJSON(ctx, "/api/v1/issuetype", nil, &out); err != nil {
		c.log.Warn(ctx, "issuetype_fetch_failed", "substituting empty issue type map", slog.String("error", err.Error()))
		return map[string]issues.IssueType{}
	}
	if out.IssueType == nil {
		return map[string]issues.IssueType{}
	}
	return out.IssueType
}

// MaintenanceInfo fetches the maintenance window for a room. The
// second return is false when the room has none or the fetch failed.
func (c *Client) MaintenanceInfo(ctx context.Context, roomID string) (issues.MaintenanceInfo, bool) {
	var out issues.MaintenanceInfo
	if err := c.getJSON(ctx, "/api/v1/maintenance/"+url.PathEscape(roomID), nil, &out); err != nil {
		c.log.Warn(ctx, "maintenance_fetch_failed", "substituting absent window",
			slog.String("room_id", roomID), slog.String("error", err.Error()))
		return issues.MaintenanceInfo{}, false
	}
	if out.RoomID == "" {
		return issues.MaintenanceInfo{}, false
	}
	return out, true
}

// SetMaintenanceInfo writes a maintenance window. A window with both
// bounds set is validated before any network call: end must be after
// start and must lie in the future. A window with either bound absent
// disables maintenance for the room and is always accepted.
func (c *Client) SetMaintenanceInfo(ctx context.Context, info issues.MaintenanceInfo) (issues.MaintenanceInfo, error) {
	if info.Enabled() {
		if !info.End.After(*info.Start) {
			return issues.MaintenanceInfo{}, ErrMaintenanceBounds
		}
		if !info.End.After(time.Now()) {
			return issues.MaintenanceInfo{}, ErrMaintenanceInPast
		}
	}
	var out issues.MaintenanceInfo
	err := c.putJSON(ctx, "/api/v1/maintenance/"+url.PathEscape(info.RoomID), nil, info, &out)
	if err != nil {
		return issues.MaintenanceInfo{}, fmt.Errorf("set maintenance info: %w", err)
	}
	return out, nil
}

// LinkIncident associates an existing incident with an issue.
func (c *Client) LinkIncident(ctx context.Context, issueID string, incName string) (issues.Issue, error) {
	params := url.Values{"incName": []string{incName}}
	var out issues.Issue
	err := c.putJSON(ctx, "/api/v1/issues/"+url.PathEscape(issueID)+"/linkIncident", params, nil, &out)
	if err != nil {
		return issues.Issue{}, fmt.Errorf("link incident: %w", err)
	}
	return out, nil
}

// CreateIncident creates a new incident in the ticketing system and
// links it to the issue.
func (c *Client) CreateIncident(ctx context.Context, issueID string, shortDescription string) (issues.Issue, error) {
	params := url.Values{"shortDescription": []string{shortDescription}}
	var out issues.Issue
	err := c.putJSON(ctx, "/api/v1/issues/"+url.PathEscape(issueID)+"/createIncident", params, nil, &out)
	if err != nil {
		return issues.Issue{}, fmt.Errorf("create incident: %w", err)
	}
	return out, nil
}

func (c *Client) AcknowledgeIssue(ctx context.Context, issueID string) error {
	return c.putJSON(ctx, "/api/v1/issues/"+url.PathEscape(issueID)+"/acknowledgeIssue", nil, nil, nil)
}

func (c *Client) UnacknowledgeIssue(ctx context.Context, issueID string) error {
	return c.putJSON(ctx, "/api/v1/issues/"+url.PathEscape(issueID)+"/unacknowledgeIssue", nil, nil, nil)
}

func (c *Client) SetStatus(ctx context.Context, issueID string, newStatus string) error {
	params := url.Values{"status": []string{newStatus}}
	return c.putJSON(ctx, "/api/v1/issues/"+url.PathEscape(issueID)+"/setStatus", params, nil, nil)
}

// CloseIssue force-closes the issue for a room.
func (c *Client) CloseIssue(ctx context.Context, roomOrIssueID string) error {
	return c.putJSON(ctx, "/api/v1/commands/closeIssue/"+url.PathEscape(roomOrIssueID), nil, nil, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedResponse, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) putJSON(ctx context.Context, path string, params url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedResponse, path, resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func maintenanceWindow(issue issues.Issue) issues.MaintenanceInfo {
	return issues.MaintenanceInfo{
		RoomID: issue.Room.ID,
		Start:  issue.MaintenanceStart,
		End:    issue.MaintenanceEnd,
	}
}
