package transport_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/diagnostics"
	"github.com/C23038/URITOMO-Frontend/internal/service/dispatch"
	"github.com/C23038/URITOMO-Frontend/internal/service/transport"
)

const waitTimeout = 3 * time.Second

type fakeBackend struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	attempts atomic.Int32
	accepted atomic.Int32
	received chan []byte
	sessions chan string
	// dropFirst closes the first accepted socket right after acknowledging it.
	dropFirst bool
	// dropAll closes every socket right after acknowledging it.
	dropAll bool
	// closeCode, when set, is sent as a close frame right after the acknowledgement.
	closeCode int
	status    int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		received: make(chan []byte, 16),
		sessions: make(chan string, 16),
	}
	r := chi.NewRouter()
	r.Get("/meeting/ws/{session}", fb.serveWS)
	fb.server = httptest.NewServer(r)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) serveWS(w http.ResponseWriter, r *http.Request) {
	fb.attempts.Add(1)
	if fb.status != 0 {
		http.Error(w, http.StatusText(fb.status), fb.status)
		return
	}
	conn, err := fb.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	n := fb.accepted.Add(1)
	fb.sessions <- chi.URLParam(r, "session")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"session_connected"}`)); err != nil {
		return
	}
	if fb.closeCode != 0 {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(fb.closeCode, "kicked"), time.Now().Add(time.Second))
		return
	}
	if fb.dropAll || (fb.dropFirst && n == 1) {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		fb.received <- data
	}
}

func (fb *fakeBackend) url(t *testing.T, sessionID string) string {
	t.Helper()
	u, err := transport.BuildURL(fb.server.URL, "/meeting/ws/{session}", sessionID)
	if err != nil {
		t.Fatalf("BuildURL err: %v", err)
	}
	return u
}

func testOptions(url string) transport.Options {
	opts := transport.DefaultOptions()
	opts.URL = url
	opts.ConnectTimeout = time.Second
	opts.RetryBaseDelay = 10 * time.Millisecond
	opts.MaxRetries = 3
	return opts
}

type stateRecorder struct {
	mu     sync.Mutex
	states []meeting.ConnectionState
	ch     chan meeting.ConnectionState
}

func recordStates(conn *transport.Connection) *stateRecorder {
	rec := &stateRecorder{ch: make(chan meeting.ConnectionState, 32)}
	conn.OnStateChange(func(s meeting.ConnectionState) {
		rec.mu.Lock()
		rec.states = append(rec.states, s)
		rec.mu.Unlock()
		rec.ch <- s
	})
	return rec
}

func (rec *stateRecorder) waitFor(t *testing.T, want meeting.ConnectionState) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case s := <-rec.ch:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (rec *stateRecorder) all() []meeting.ConnectionState {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]meeting.ConnectionState, len(rec.states))
	copy(out, rec.states)
	return out
}

func TestConnectionDeliversEventsAndSends(t *testing.T) {
	fb := newFakeBackend(t)
	counters := diagnostics.New()
	conn := transport.New(testOptions(fb.url(t, "sess-abc")), nil, counters)
	defer conn.Disconnect()

	events := make(chan dispatch.Event, 4)
	conn.OnMessage(func(evt dispatch.Event) { events <- evt })
	rec := recordStates(conn)

	conn.Connect(context.Background())
	rec.waitFor(t, meeting.StateConnected)

	select {
	case evt := <-events:
		if evt.Type() != dispatch.TypeSessionConnected {
			t.Fatalf("unexpected first event %s", evt.Type())
		}
	case <-time.After(waitTimeout):
		t.Fatal("no session_connected event")
	}

	if got := <-fb.sessions; got != "sess-abc" {
		t.Fatalf("unexpected session path param %q", got)
	}

	if err := conn.Send(dispatch.ChatSend{Type: "chat", Text: "hello", Lang: "auto"}); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	select {
	case data := <-fb.received:
		if !strings.Contains(string(data), `"text":"hello"`) {
			t.Fatalf("unexpected frame %s", data)
		}
	case <-time.After(waitTimeout):
		t.Fatal("backend did not receive frame")
	}
	if counters.Get(diagnostics.Sent) != 1 {
		t.Fatalf("expected one sent frame, got %d", counters.Get(diagnostics.Sent))
	}

	states := rec.all()
	if states[0] != meeting.StateConnecting {
		t.Fatalf("expected connecting first, got %v", states)
	}
}

func TestConnectionSendBeforeConnectIsDropped(t *testing.T) {
	counters := diagnostics.New()
	conn := transport.New(testOptions("ws://127.0.0.1:1/ws"), nil, counters)
	defer conn.Disconnect()

	err := conn.Send(dispatch.ChatSend{Type: "chat", Text: "early"})
	if !errors.Is(err, transport.ErrSendDropped) {
		t.Fatalf("expected ErrSendDropped, got %v", err)
	}
	if counters.Get(diagnostics.SendDropped) != 1 {
		t.Fatalf("expected dropped counter 1, got %d", counters.Get(diagnostics.SendDropped))
	}
}

func TestConnectionDisconnectIsIdempotent(t *testing.T) {
	fb := newFakeBackend(t)
	conn := transport.New(testOptions(fb.url(t, "s1")), nil, nil)
	rec := recordStates(conn)
	var messages atomic.Int32
	conn.OnMessage(func(dispatch.Event) { messages.Add(1) })

	conn.Connect(context.Background())
	rec.waitFor(t, meeting.StateConnected)

	conn.Disconnect()
	conn.Disconnect()

	select {
	case <-conn.Done():
	case <-time.After(waitTimeout):
		t.Fatal("background loop did not stop")
	}
	if conn.State() != meeting.StateDisconnected {
		t.Fatalf("expected disconnected, got %s", conn.State())
	}

	// handlers are released: a new registration is a no-op and sends are dropped
	unregister := conn.OnMessage(func(dispatch.Event) { t.Fatal("handler after disconnect") })
	unregister()
	if err := conn.Send(dispatch.ChatSend{Type: "chat", Text: "late"}); !errors.Is(err, transport.ErrSendDropped) {
		t.Fatalf("expected ErrSendDropped after disconnect, got %v", err)
	}

	// Connect after Disconnect does nothing.
	conn.Connect(context.Background())
	if conn.State() != meeting.StateDisconnected {
		t.Fatalf("expected disconnected after late Connect, got %s", conn.State())
	}
	waitUntil(t, func() bool { return fb.accepted.Load() == 1 }, "expected a single accepted socket")
}

func TestConnectionDisconnectBeforeConnect(t *testing.T) {
	conn := transport.New(testOptions("ws://127.0.0.1:1/ws"), nil, nil)
	conn.Disconnect()

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done should be closed when the loop never started")
	}
}

func TestConnectionReconnectsAfterDrop(t *testing.T) {
	fb := newFakeBackend(t)
	fb.dropFirst = true
	counters := diagnostics.New()
	conn := transport.New(testOptions(fb.url(t, "s1")), nil, counters)
	defer conn.Disconnect()
	rec := recordStates(conn)

	conn.Connect(context.Background())
	rec.waitFor(t, meeting.StateReconnecting)
	rec.waitFor(t, meeting.StateConnected)

	if got := counters.Get(diagnostics.Reconnect); got != 1 {
		t.Fatalf("expected one reconnect, got %d", got)
	}
	waitUntil(t, func() bool { return fb.accepted.Load() == 2 }, "expected two accepted sockets")
}

func TestConnectionWithoutReconnectEndsDisconnected(t *testing.T) {
	fb := newFakeBackend(t)
	fb.dropFirst = true
	opts := testOptions(fb.url(t, "s1"))
	opts.Reconnect = false
	conn := transport.New(opts, nil, nil)
	defer conn.Disconnect()
	rec := recordStates(conn)

	conn.Connect(context.Background())
	rec.waitFor(t, meeting.StateConnected)
	rec.waitFor(t, meeting.StateDisconnected)

	<-conn.Done()
	if fb.accepted.Load() != 1 {
		t.Fatalf("expected no reconnect, got %d sockets", fb.accepted.Load())
	}
}

func TestConnectionRejectedHandshakeFailsWithoutRetry(t *testing.T) {
	fb := newFakeBackend(t)
	fb.status = http.StatusForbidden
	conn := transport.New(testOptions(fb.url(t, "s1")), nil, nil)
	defer conn.Disconnect()
	rec := recordStates(conn)

	conn.Connect(context.Background())
	rec.waitFor(t, meeting.StateFailed)

	if fb.attempts.Load() != 1 {
		t.Fatalf("expected a single attempt for 403, got %d", fb.attempts.Load())
	}
}

func TestConnectionExhaustsRetries(t *testing.T) {
	fb := newFakeBackend(t)
	fb.status = http.StatusServiceUnavailable
	conn := transport.New(testOptions(fb.url(t, "s1")), nil, nil)
	defer conn.Disconnect()
	rec := recordStates(conn)

	conn.Connect(context.Background())
	rec.waitFor(t, meeting.StateFailed)

	if fb.attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fb.attempts.Load())
	}
}

func waitDone(t *testing.T, conn *transport.Connection) {
	t.Helper()
	select {
	case <-conn.Done():
	case <-time.After(waitTimeout):
		t.Fatal("background loop did not stop")
	}
}

func TestConnectionPolicyCloseIsNotRetried(t *testing.T) {
	fb := newFakeBackend(t)
	fb.closeCode = websocket.ClosePolicyViolation
	counters := diagnostics.New()
	conn := transport.New(testOptions(fb.url(t, "s1")), nil, counters)
	defer conn.Disconnect()
	rec := recordStates(conn)

	conn.Connect(context.Background())
	rec.waitFor(t, meeting.StateFailed)
	waitDone(t, conn)

	time.Sleep(50 * time.Millisecond)
	if got := fb.attempts.Load(); got != 1 {
		t.Fatalf("expected a single dial after a policy close, got %d", got)
	}
	if got := counters.Get(diagnostics.Reconnect); got != 0 {
		t.Fatalf("expected no reconnects, got %d", got)
	}
	if conn.State() != meeting.StateFailed {
		t.Fatalf("expected failed, got %s", conn.State())
	}
}

func TestConnectionNormalCloseEndsDisconnected(t *testing.T) {
	fb := newFakeBackend(t)
	fb.closeCode = websocket.CloseNormalClosure
	conn := transport.New(testOptions(fb.url(t, "s1")), nil, nil)
	defer conn.Disconnect()
	rec := recordStates(conn)

	conn.Connect(context.Background())
	rec.waitFor(t, meeting.StateConnected)
	rec.waitFor(t, meeting.StateDisconnected)
	waitDone(t, conn)

	if got := fb.attempts.Load(); got != 1 {
		t.Fatalf("expected a single dial after a normal close, got %d", got)
	}
}

func TestConnectionFlappingSocketFails(t *testing.T) {
	fb := newFakeBackend(t)
	fb.dropAll = true
	counters := diagnostics.New()
	opts := testOptions(fb.url(t, "s1"))
	opts.StableAfter = time.Minute
	conn := transport.New(opts, nil, counters)
	defer conn.Disconnect()
	rec := recordStates(conn)

	started := time.Now()
	conn.Connect(context.Background())
	rec.waitFor(t, meeting.StateFailed)
	waitDone(t, conn)

	// MaxRetries is 3: the third short-lived socket ends the loop
	if got := fb.accepted.Load(); got != 3 {
		t.Fatalf("expected 3 accepted sockets, got %d", got)
	}
	if got := counters.Get(diagnostics.Reconnect); got != 2 {
		t.Fatalf("expected 2 reconnects, got %d", got)
	}
	// linear backoff: 1x then 2x the 10ms base delay
	if elapsed := time.Since(started); elapsed < 30*time.Millisecond {
		t.Fatalf("expected backoff between redials, finished in %s", elapsed)
	}
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"forbidden", &transport.HandshakeError{StatusCode: 403, Err: websocket.ErrBadHandshake}, false},
		{"unavailable", &transport.HandshakeError{StatusCode: 503, Err: websocket.ErrBadHandshake}, true},
		{"rate limited", &transport.HandshakeError{StatusCode: 429, Err: websocket.ErrBadHandshake}, true},
		{"abnormal close", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, true},
		{"normal close", &websocket.CloseError{Code: websocket.CloseNormalClosure}, false},
		{"wrapped policy close", fmt.Errorf("%w: %w", transport.ErrConnectionDropped, &websocket.CloseError{Code: websocket.ClosePolicyViolation}), false},
		{"wrapped abnormal close", fmt.Errorf("%w: %w", transport.ErrConnectionDropped, &websocket.CloseError{Code: websocket.CloseAbnormalClosure}), true},
		{"network", errors.New("connection refused"), true},
	}
	for _, tc := range cases {
		if got := transport.IsRetryableError(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryableError = %v, want %v", tc.name, got, tc.want)
		}
	}
}
