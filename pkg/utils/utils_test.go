package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondError(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondError(resp, http.StatusBadRequest, "bad")

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if got := strings.TrimSpace(resp.Body.String()); got != `{"error":"bad"}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	var payload struct {
		Text string `json:"text"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hi"}`))
	if err := DecodeJSON(req, &payload); err != nil {
		t.Fatalf("DecodeJSON err: %v", err)
	}
	if payload.Text != "hi" {
		t.Fatalf("unexpected text %q", payload.Text)
	}

	empty := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(empty, &payload); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestSendSSEEvent(t *testing.T) {
	resp := httptest.NewRecorder()
	SetupSSEHeaders(resp)
	if err := SendSSEEvent(resp, resp, "state", map[string]string{"state": "connected"}); err != nil {
		t.Fatalf("SendSSEEvent err: %v", err)
	}

	if resp.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatal("missing event-stream content type")
	}
	want := "event: state\ndata: {\"state\":\"connected\"}\n\n"
	if resp.Body.String() != want {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}
