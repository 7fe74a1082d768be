package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"av-ops-console/shared/events"
)

var ErrDropMessage = errors.New("message dropped")

// Prepare normalizes one mirrored message before it is republished on
// the local cluster. Device events are decoded and validated so the
// alert engine never sees a reading it cannot attribute to a room;
// anything undecodable or missing its room is dropped here rather
// than replayed forever downstream. Messages on other topics pass
// through untouched.
//
// Bridged messages carry a hub_bridged_at header, and device events
// missing a partition key are re-keyed by room so per-room ordering
// survives the hop.
func Prepare(topic string, msg kafka.Message, now time.Time) (kafka.Message, error) {
	out := kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: msg.Headers,
	}

	if topic == events.TopicDeviceEvents {
		var event events.DeviceEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return kafka.Message{}, fmt.Errorf("%w: undecodable device event: %v", ErrDropMessage, err)
		}
		if event.RoomID == "" || event.DeviceID == "" || event.Key == "" {
			return kafka.Message{}, fmt.Errorf("%w: device event missing room, device, or key", ErrDropMessage)
		}
		if len(out.Key) == 0 {
			out.Key = []byte(event.RoomID)
		}
		out.Headers = append(out.Headers, kafka.Header{Key: "room_id", Value: []byte(event.RoomID)})
	}

	out.Headers = append(out.Headers, kafka.Header{Key: "hub_bridged_at", Value: []byte(now.UTC().Format(time.RFC3339))})
	return out, nil
}
