package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"av-ops-console/shared/authx"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthPassthroughWithoutVerifier(t *testing.T) {
	m := AuthMiddleware{}
	rec := httptest.NewRecorder()
	m.Wrap(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/issues/x/acknowledgeIssue", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected passthrough with auth disabled, got %d", rec.Code)
	}
}

func TestAuthSkipPaths(t *testing.T) {
	verifier, err := authx.NewJWTVerifier("https://issuer.example.edu", "av-ops", "http://127.0.0.1:0/jwks", 60, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := AuthMiddleware{
		Verifier: verifier,
		Skip:     func(r *http.Request) bool { return strings.HasPrefix(r.URL.Path, "/healthz") },
	}
	rec := httptest.NewRecorder()
	m.Wrap(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected skip path to bypass auth, got %d", rec.Code)
	}
}

func TestAuthRejectsMissingBearer(t *testing.T) {
	verifier, err := authx.NewJWTVerifier("https://issuer.example.edu", "av-ops", "http://127.0.0.1:0/jwks", 60, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := AuthMiddleware{Verifier: verifier}
	rec := httptest.NewRecorder()
	m.Wrap(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/issues", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", rec.Code)
	}
}

func TestMutatingMethods(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		if mutating(method) {
			t.Fatalf("expected %s treated as read", method)
		}
	}
	for _, method := range []string{http.MethodPut, http.MethodPost, http.MethodDelete} {
		if !mutating(method) {
			t.Fatalf("expected %s treated as write", method)
		}
	}
}
