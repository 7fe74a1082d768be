package bridge

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"av-ops-console/shared/events"
)

func deviceEventValue(t *testing.T, event events.DeviceEvent) []byte {
	t.Helper()
	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return raw
}

func headerValue(msg kafka.Message, key string) (string, bool) {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}

func TestPrepareReKeysDeviceEventByRoom(t *testing.T) {
	value := deviceEventValue(t, events.DeviceEvent{RoomID: "ITB-110", DeviceID: "ITB-110-PROJ", Key: "online", Value: "false"})
	out, err := Prepare(events.TopicDeviceEvents, kafka.Message{Value: value}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out.Key) != "ITB-110" {
		t.Fatalf("expected room partition key, got %q", out.Key)
	}
	if room, ok := headerValue(out, "room_id"); !ok || room != "ITB-110" {
		t.Fatalf("expected room_id header, got %q ok=%v", room, ok)
	}
	if _, ok := headerValue(out, "hub_bridged_at"); !ok {
		t.Fatalf("expected hub_bridged_at header")
	}
}

func TestPrepareKeepsExistingKey(t *testing.T) {
	value := deviceEventValue(t, events.DeviceEvent{RoomID: "ITB-110", DeviceID: "ITB-110-PROJ", Key: "online", Value: "false"})
	out, err := Prepare(events.TopicDeviceEvents, kafka.Message{Key: []byte("upstream-key"), Value: value}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out.Key) != "upstream-key" {
		t.Fatalf("expected upstream key preserved, got %q", out.Key)
	}
}

func TestPrepareDropsInvalidDeviceEvents(t *testing.T) {
	if _, err := Prepare(events.TopicDeviceEvents, kafka.Message{Value: []byte("{not json")}, time.Now()); !errors.Is(err, ErrDropMessage) {
		t.Fatalf("expected undecodable event dropped, got %v", err)
	}

	value := deviceEventValue(t, events.DeviceEvent{DeviceID: "ITB-110-PROJ", Key: "online", Value: "false"})
	if _, err := Prepare(events.TopicDeviceEvents, kafka.Message{Value: value}, time.Now()); !errors.Is(err, ErrDropMessage) {
		t.Fatalf("expected roomless event dropped, got %v", err)
	}
}

func TestPreparePassesOtherTopicsThrough(t *testing.T) {
	out, err := Prepare("room.telemetry", kafka.Message{Key: []byte("k"), Value: []byte("opaque")}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out.Value) != "opaque" || string(out.Key) != "k" {
		t.Fatalf("expected passthrough message untouched, got key=%q value=%q", out.Key, out.Value)
	}
	if _, ok := headerValue(out, "room_id"); ok {
		t.Fatalf("did not expect room_id header on passthrough topic")
	}
}
