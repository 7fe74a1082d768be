package config

import "testing"

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestParseAnyCSV(t *testing.T) {
	raw := []any{"x", " ", "y"}
	got := parseAnyCSV(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0] != "x" || got[1] != "y" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("CONFIG_PATH", "")
	cfg, problems := Load("dashboard", 8080)
	for _, p := range problems {
		t.Fatalf("unexpected problem: %s: %s", p.Field, p.Message)
	}
	if cfg.PollIntervalSec != 10 {
		t.Fatalf("expected default poll interval 10, got %d", cfg.PollIntervalSec)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.CacheResyncSec != 300 {
		t.Fatalf("expected default cache resync interval 300, got %d", cfg.CacheResyncSec)
	}
}

func TestLoadJWKSDefault(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("OIDC_ISSUER", "https://issuer.example.com/")
	t.Setenv("OIDC_JWKS_URL", "")
	cfg, _ := Load("alertmanager", 8081)
	want := "https://issuer.example.com/.well-known/jwks.json"
	if cfg.OIDCJWKSURL != want {
		t.Fatalf("expected jwks url %q, got %q", want, cfg.OIDCJWKSURL)
	}
}
