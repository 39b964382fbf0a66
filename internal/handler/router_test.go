package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRouterHealthAndCORS(t *testing.T) {
	r := NewRouter(Deps{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", resp.Code, resp.Body.String())
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS header on every response")
	}

	preflight := httptest.NewRecorder()
	r.ServeHTTP(preflight, httptest.NewRequest(http.MethodOptions, "/api/messages", nil))
	if preflight.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", preflight.Code)
	}
}

func TestRouterWithoutSession(t *testing.T) {
	r := NewRouter(Deps{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/messages", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a session, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/rooms/r1", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a room api, got %d", resp.Code)
	}
}
