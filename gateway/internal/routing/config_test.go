package routing

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolverResolveCluster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.json")
	data := `{
  "default_cluster": "cluster-a",
  "clusters": {
    "cluster-a": {"brokers": ["localhost:9092"]},
    "cluster-b": {"brokers": ["localhost:9093"]}
  },
  "routes": [
    {"building": "ITB", "cluster": "cluster-b"}
  ]
}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write routes file: %v", err)
	}
	resolver, err := Load(path)
	if err != nil {
		t.Fatalf("load routes: %v", err)
	}
	if got, ok := resolver.ResolveCluster("itb"); !ok || got != "cluster-b" {
		t.Fatalf("expected cluster-b, got %q (ok=%v)", got, ok)
	}
	if got, ok := resolver.ResolveCluster("HBLL"); !ok || got != "cluster-a" {
		t.Fatalf("expected default cluster-a, got %q (ok=%v)", got, ok)
	}
}

func TestResolverResolveTopic(t *testing.T) {
	resolver := Resolver{Config: Config{
		DefaultTopic: "device.events",
		TopicMap: map[string]string{
			"volume": "device.telemetry",
		},
	}}
	if got := resolver.ResolveTopic("system-power", ""); got != "device.events" {
		t.Fatalf("expected device.events, got %q", got)
	}
	if got := resolver.ResolveTopic("volume", ""); got != "device.telemetry" {
		t.Fatalf("expected device.telemetry, got %q", got)
	}
	if got := resolver.ResolveTopic("volume", "override.topic"); got != "override.topic" {
		t.Fatalf("expected override.topic, got %q", got)
	}
}

func TestBuildingFromRoom(t *testing.T) {
	cases := map[string]string{
		"ITB-110":   "ITB",
		"itb-1101":  "ITB",
		"HBLL":      "HBLL",
		" ITB-110 ": "ITB",
	}
	for roomID, want := range cases {
		if got := BuildingFromRoom(roomID); got != want {
			t.Fatalf("BuildingFromRoom(%q) = %q, want %q", roomID, got, want)
		}
	}
}

func TestLoadRejectsUnknownCluster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.json")
	data := `{
  "clusters": {"cluster-a": {"brokers": ["localhost:9092"]}},
  "routes": [{"building": "ITB", "cluster": "missing"}]
}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write routes file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown cluster reference")
	}
}
