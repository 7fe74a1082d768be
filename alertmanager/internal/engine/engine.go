package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"av-ops-console/alertmanager/internal/issuecache"
	"av-ops-console/shared/events"
	"av-ops-console/shared/influxx"
	"av-ops-console/shared/issues"
	"av-ops-console/shared/logx"
	"av-ops-console/shared/metricsx"
)

type IssueStore interface {
	OpenAlert(ctx context.Context, room issues.Room, device issues.Device, alertType string, start time.Time) (issues.Alert, bool, error)
	CloseAlert(ctx context.Context, roomID string, deviceID string, alertType string, end time.Time) (bool, error)
	CloseIssueIfClear(ctx context.Context, roomID string) (bool, error)
	ActiveIssueForRoom(ctx context.Context, roomID string) (issues.Issue, error)
}

// Engine turns raw device readings into alert transitions. Each event
// is evaluated against the rule set; a transition is persisted, the
// issue cache refreshed, and the transition recorded as a time-series
// point.
type Engine struct {
	rules  []Rule
	store  IssueStore
	cache  *issuecache.Cache
	influx *influxx.Client
	log    logx.Logger
}

func New(rules []Rule, store IssueStore, cache *issuecache.Cache, influx *influxx.Client, log logx.Logger) *Engine {
	return &Engine{
		rules:  rules,
		store:  store,
		cache:  cache,
		influx: influx,
		log:    log,
	}
}

// HandleDeviceEvent applies the rule set to one reading. Readings no
// rule covers are dropped silently; that is the common case.
func (e *Engine) HandleDeviceEvent(ctx context.Context, event events.DeviceEvent) error {
	room := issues.Room{ID: event.RoomID, Name: strings.ReplaceAll(event.RoomID, "-", " ")}
	device := issues.Device{ID: event.DeviceID, Name: event.DeviceID, Room: room}
	when := event.Timestamp
	if when.IsZero() {
		when = time.Now().UTC()
	}

	for i := range e.rules {
		rule := &e.rules[i]
		if !rule.Applies(event.DeviceID, event.Key) {
			continue
		}
		switch {
		case rule.Opens(event.Value):
			if err := e.openAlert(ctx, room, device, rule.AlertType, when); err != nil {
				return err
			}
		case rule.Closes(event.Value):
			if err := e.closeAlert(ctx, room, device, rule.AlertType, when); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) openAlert(ctx context.Context, room issues.Room, device issues.Device, alertType string, when time.Time) error {
	alert, created, err := e.store.OpenAlert(ctx, room, device, alertType, when)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	e.log.Info(ctx, "alert_opened", "alert opened",
		slog.String("room_id", room.ID),
		slog.String("device_id", device.ID),
		slog.String("alert_type", alertType),
		slog.String("alert_id", alert.ID),
	)
	metricsx.IncAlertTransition(alertType, "open")
	e.refreshCache(ctx, room.ID)
	e.writePoint(ctx, room.ID, device.ID, alertType, "open", when)
	return nil
}

func (e *Engine) closeAlert(ctx context.Context, room issues.Room, device issues.Device, alertType string, when time.Time) error {
	closed, err := e.store.CloseAlert(ctx, room.ID, device.ID, alertType, when)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}
	e.log.Info(ctx, "alert_closed", "alert closed",
		slog.String("room_id", room.ID),
		slog.String("device_id", device.ID),
		slog.String("alert_type", alertType),
	)
	metricsx.IncAlertTransition(alertType, "close")

	if _, err := e.store.CloseIssueIfClear(ctx, room.ID); err != nil {
		return err
	}
	e.refreshCache(ctx, room.ID)
	e.writePoint(ctx, room.ID, device.ID, alertType, "close", when)
	return nil
}

func (e *Engine) refreshCache(ctx context.Context, roomID string) {
	if e.cache == nil {
		return
	}
	issue, err := e.store.ActiveIssueForRoom(ctx, roomID)
	if err == nil {
		e.cache.Put(issue)
		return
	}
	// Only a definitive no-active-issue answer may evict. On any
	// other error the cached entry stays until the next resync.
	if !errors.Is(err, issues.ErrNoActiveIssue) {
		e.log.Warn(ctx, "cache_refresh_failed", "issue cache left as-is",
			slog.String("room_id", roomID),
			slog.String("error", err.Error()),
		)
		return
	}
	if cached, ok := e.cache.ForRoom(roomID); ok {
		end := time.Now().UTC()
		cached.End = &end
		e.cache.Put(cached)
	}
}

func (e *Engine) writePoint(ctx context.Context, roomID string, deviceID string, alertType string, action string, when time.Time) {
	if e.influx == nil {
		return
	}
	err := e.influx.WritePoint(ctx, "alert_transitions",
		map[string]string{
			"room":   roomID,
			"device": deviceID,
			"type":   alertType,
			"action": action,
		},
		map[string]any{"count": 1},
		when,
	)
	if err != nil {
		metricsx.IncInfluxWriteFailure()
		e.log.Warn(ctx, "influx_write_failed", "alert transition point dropped", slog.String("error", err.Error()))
	}
}
