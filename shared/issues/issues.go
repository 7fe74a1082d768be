package issues

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrIssueNotFound = errors.New("issue not found")
	ErrNoActiveIssue = errors.New("no active issue for room")
)

type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Room Room   `json:"room"`
}

// ShortName returns the display name for a device. Device names encode a
// dash-delimited hierarchy (building-room-device); when the name splits into
// exactly 3 segments the last segment is the display name, otherwise the full
// name is used.
func (d Device) ShortName() string {
	split := strings.Split(d.Name, "-")
	if len(split) == 3 {
		return split[2]
	}
	return d.Name
}

type Alert struct {
	ID      string     `json:"id"`
	IssueID string     `json:"issueID"`
	Device  Device     `json:"device"`
	Type    string     `json:"type"`
	Start   time.Time  `json:"start"`
	End     *time.Time `json:"end,omitempty"`
}

// Active returns true while the alert has no end time.
func (a Alert) Active() bool {
	return a.End == nil
}

type Incident struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription,omitempty"`
}

type IssueEventType string

const (
	TypeSystemMessage IssueEventType = "system-message"
)

type SystemMessage struct {
	Message string `json:"msg"`
}

func NewSystemMessage(msg string) json.RawMessage {
	raw, _ := json.Marshal(SystemMessage{Message: msg})
	return raw
}

type IssueEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      IssueEventType  `json:"type"`
	Data      json.RawMessage `json:"data"`
}

func (e IssueEvent) ParseData() (any, error) {
	switch e.Type {
	case TypeSystemMessage:
		var msg SystemMessage
		if err := json.Unmarshal(e.Data, &msg); err != nil {
			return nil, fmt.Errorf("unable to parse system message: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

// Issue aggregates the ongoing alert activity for one room. It is opened by
// the backend when the first alert on a room fires and closed when every
// alert has cleared or an operator force-closes it. Alerts and Incidents are
// transmitted as plain key/value objects keyed by id.
type Issue struct {
	ID               string              `json:"id"`
	Room             Room                `json:"room"`
	Start            time.Time           `json:"start"`
	End              *time.Time          `json:"end,omitempty"`
	Alerts           map[string]Alert    `json:"alerts"`
	Incidents        map[string]Incident `json:"incidents"`
	Events           []IssueEvent        `json:"events"`
	MaintenanceStart *time.Time          `json:"maintenanceStart,omitempty"`
	MaintenanceEnd   *time.Time          `json:"maintenanceEnd,omitempty"`
	AcknowledgedTime *time.Time          `json:"acknowledgedTime,omitempty"`
	Status           string              `json:"status,omitempty"`

	// OnMaintenance is derived client-side on every poll; it is never
	// authoritative beyond the snapshot it was computed for.
	OnMaintenance bool `json:"isOnMaintenance"`
}

// Active returns true while the issue has not been closed.
func (i Issue) Active() bool {
	return i.End == nil
}

// HasActiveAlerts reports whether any alert on the issue is still open.
func (i Issue) HasActiveAlerts() bool {
	for _, a := range i.Alerts {
		if a.Active() {
			return true
		}
	}
	return false
}

// MaintenanceInfo is the scheduled maintenance window for a room. A window
// with either bound missing is disabled, never open-ended.
type MaintenanceInfo struct {
	RoomID string     `json:"roomID"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Note   string     `json:"note,omitempty"`
}

// ActiveAt reports whether the window covers now. Both bounds must be
// present and the comparison is inclusive on both ends.
func (m MaintenanceInfo) ActiveAt(now time.Time) bool {
	if m.Start == nil || m.End == nil {
		return false
	}
	if now.Before(*m.Start) {
		return false
	}
	if now.After(*m.End) {
		return false
	}
	return true
}

// Enabled reports whether the window has both bounds set, regardless of
// whether it currently covers the clock.
func (m MaintenanceInfo) Enabled() bool {
	return m.Start != nil && m.End != nil
}

type RoomOverview struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	InMaintenance bool   `json:"inMaintenance"`
}

type IssueType struct {
	IDAlertType string `json:"idAlertType"`
	KBArticle   string `json:"kbArticle"`
}
