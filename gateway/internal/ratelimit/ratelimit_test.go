package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterAllowsWithinBurst(t *testing.T) {
	limiter := New(1, 3, time.Minute)
	for i := 0; i < 3; i++ {
		if !limiter.Allow("ITB-110-CP1") {
			t.Fatalf("request %d within burst was rejected", i)
		}
	}
	if limiter.Allow("ITB-110-CP1") {
		t.Fatal("request beyond burst was allowed")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter := New(1, 1, time.Minute)
	if !limiter.Allow("ITB-110-CP1") {
		t.Fatal("first device rejected")
	}
	if !limiter.Allow("HBLL-200-CP1") {
		t.Fatal("second device rejected, keys should not share a bucket")
	}
	if limiter.Allow("ITB-110-CP1") {
		t.Fatal("exhausted device was allowed")
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/events", nil)
	r.RemoteAddr = "10.0.0.1:4444"
	r.Header.Set("X-Forwarded-For", "192.168.1.10, 10.0.0.2")
	if got := ClientIP(r); got != "192.168.1.10" {
		t.Fatalf("expected forwarded IP, got %q", got)
	}
	r.Header.Del("X-Forwarded-For")
	if got := ClientIP(r); got != "10.0.0.1" {
		t.Fatalf("expected remote host, got %q", got)
	}
}
