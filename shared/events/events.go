package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format for everything published to Kafka.
// AggregateID is the room/issue ID the event belongs to.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	TopicDeviceEvents = "device.events"
	TopicIssueEvents  = "issue.events"
	TopicAlertStream  = "alert.stream"
)

// DeviceEvent is what room hardware publishes onto TopicDeviceEvents.
// Value carries the raw reading the alert rules match against.
type DeviceEvent struct {
	RoomID    string    `json:"roomID"`
	DeviceID  string    `json:"deviceID"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}
