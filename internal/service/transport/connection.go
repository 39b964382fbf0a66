// Package transport owns the single websocket connection of a live session.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/diagnostics"
	"github.com/C23038/URITOMO-Frontend/internal/service/dispatch"
)

var (
	ErrConnectionDropped = errors.New("connection dropped")
	ErrSendDropped       = errors.New("send dropped: connection not open")
)

// Options controls dialing, keepalive and reconnect behaviour.
type Options struct {
	URL            string
	Header         http.Header
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	Reconnect      bool
	MaxRetries     int
	RetryBaseDelay time.Duration
	// StableAfter is how long a socket must stay up before its drop stops counting
	// against MaxRetries.
	StableAfter time.Duration
}

func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		Reconnect:      true,
		MaxRetries:     5,
		RetryBaseDelay: time.Second,
		StableAfter:    30 * time.Second,
	}
}

// StateHandler observes connection state transitions.
type StateHandler func(meeting.ConnectionState)

type stateListener struct {
	id     uint64
	handle StateHandler
}

// Connection is one logical connection. It dials in the background and, when enabled,
// reconnects after unexpected drops. Outbound frames are never queued.
type Connection struct {
	opts       Options
	log        *slog.Logger
	counters   *diagnostics.Counters
	dispatcher *dispatch.Dispatcher
	dialer     *websocket.Dialer

	mu             sync.Mutex
	conn           *websocket.Conn
	state          meeting.ConnectionState
	started        bool
	closed         bool
	cancel         context.CancelFunc
	done           chan struct{}
	stateListeners []stateListener
	nextListenerID uint64

	writeMu sync.Mutex
}

func New(opts Options, log *slog.Logger, counters *diagnostics.Counters) *Connection {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = DefaultOptions().StableAfter
	}
	return &Connection{
		opts:       opts,
		log:        log.With("component", "transport"),
		counters:   counters,
		dispatcher: dispatch.New(log, counters),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.ConnectTimeout,
		},
		state: meeting.StateDisconnected,
		done:  make(chan struct{}),
	}
}

// Connect starts dialing in the background and returns immediately.
// Calling it again, or after Disconnect, does nothing.
func (c *Connection) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.setState(meeting.StateConnecting)
	go c.run(runCtx)
}

func (c *Connection) run(ctx context.Context) {
	defer close(c.done)

	first := true
	// drops counts consecutive sockets that closed before StableAfter.
	drops := 0
	for {
		conn, err := c.connectWithRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("websocket connect failed", "url", c.opts.URL, "error", err)
			c.setState(meeting.StateFailed)
			return
		}
		if !first {
			c.counters.Incr(diagnostics.Reconnect)
			c.log.Info("websocket reconnected", "url", c.opts.URL)
		}
		first = false
		if !c.attach(conn) {
			_ = conn.Close()
			return
		}

		connectedAt := time.Now()
		err = c.readLoop(ctx, conn)
		c.detach(conn)
		if ctx.Err() != nil {
			return
		}

		c.log.Warn("websocket connection lost", "error", err, "uptime", time.Since(connectedAt))
		if !c.opts.Reconnect || websocket.IsCloseError(closeCause(err), websocket.CloseNormalClosure) {
			c.setState(meeting.StateDisconnected)
			return
		}
		if !IsRetryableError(err) {
			c.log.Error("websocket closed by server, not reconnecting", "error", err)
			c.setState(meeting.StateFailed)
			return
		}

		if time.Since(connectedAt) >= c.opts.StableAfter {
			drops = 0
		}
		drops++
		if drops >= c.opts.MaxRetries {
			c.log.Error("websocket keeps dropping, giving up", "drops", drops)
			c.setState(meeting.StateFailed)
			return
		}

		c.setState(meeting.StateReconnecting)
		delay := time.Duration(drops) * c.opts.RetryBaseDelay
		c.log.Debug("waiting before reconnect", "attempt", drops, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// closeCause returns the close frame behind err, or err itself when there is none.
func closeCause(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr
	}
	return err
}

// connectWithRetry dials with a linear backoff. Handshake rejections in the 4xx range are not retried.
func (c *Connection) connectWithRetry(ctx context.Context) (*websocket.Conn, error) {
	attempts := 1
	if c.opts.Reconnect {
		attempts = c.opts.MaxRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := c.dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryableError(err) {
			return nil, err
		}
		if i == attempts-1 {
			break
		}

		retryDelay := time.Duration(i+1) * c.opts.RetryBaseDelay
		c.log.Debug("retrying websocket dial", "attempt", i+1, "delay", retryDelay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts, last error: %w", attempts, lastErr)
}

func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx := ctx
	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}

	conn, resp, err := c.dialer.DialContext(dialCtx, c.opts.URL, c.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// attach publishes a freshly dialed socket. It reports false when Disconnect won the race.
func (c *Connection) attach(conn *websocket.Conn) bool {
	c.extendReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline(conn)
		return nil
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(meeting.StateConnected)
	return true
}

func (c *Connection) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Connection) extendReadDeadline(conn *websocket.Conn) {
	if c.opts.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
}

func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn) error {
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionDropped, err)
		}
		c.extendReadDeadline(conn)
		c.dispatcher.Dispatch(data)
	}
}

// pingLoop sends control pings; a failed ping closes the socket so the read loop notices.
func (c *Connection) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if c.opts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout())
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug("ping failed", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Connection) writeTimeout() time.Duration {
	if c.opts.WriteTimeout > 0 {
		return c.opts.WriteTimeout
	}
	return 10 * time.Second
}

// Send serialises v and writes it when the connection is open. Otherwise the frame is
// dropped and ErrSendDropped is returned.
func (c *Connection) Send(v any) error {
	data, err := dispatch.EncodeFrame(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if conn == nil || state != meeting.StateConnected {
		c.counters.Incr(diagnostics.SendDropped)
		c.log.Warn("dropping outbound frame", "state", state)
		return ErrSendDropped
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.counters.Incr(diagnostics.SendDropped)
		c.log.Warn("write failed, frame dropped", "error", err)
		return fmt.Errorf("%w: %v", ErrSendDropped, err)
	}
	c.counters.Incr(diagnostics.Sent)
	return nil
}

// OnMessage registers a handler for decoded inbound events.
func (c *Connection) OnMessage(h dispatch.Handler) func() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return func() {}
	}
	return c.dispatcher.Register(h)
}

// OnStateChange registers a handler for state transitions.
func (c *Connection) OnStateChange(h StateHandler) func() {
	if h == nil {
		return func() {}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	c.nextListenerID++
	id := c.nextListenerID
	c.stateListeners = append(c.stateListeners, stateListener{id: id, handle: h})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.stateListeners {
			if l.id == id {
				c.stateListeners = append(c.stateListeners[:i:i], c.stateListeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Connection) State() meeting.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the background loop has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Disconnect closes the socket, stops reconnecting and releases every handler. It is idempotent.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel, conn, started := c.cancel, c.conn, c.started
	c.conn = nil
	c.state = meeting.StateDisconnected
	listeners := c.stateListeners
	c.stateListeners = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if !started {
		close(c.done)
	}
	c.dispatcher.Reset()

	for _, l := range listeners {
		l.handle(meeting.StateDisconnected)
	}
}

func (c *Connection) setState(s meeting.ConnectionState) {
	c.mu.Lock()
	if c.closed || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	listeners := make([]stateListener, len(c.stateListeners))
	copy(listeners, c.stateListeners)
	c.mu.Unlock()

	c.log.Debug("connection state changed", "state", s)
	for _, l := range listeners {
		l.handle(s)
	}
}

// HandshakeError is returned when the server answered the upgrade request with a non-101 status.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake rejected with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// IsRetryableError reports whether a dial or read error is worth another attempt.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var hs *HandshakeError
	if errors.As(err, &hs) {
		return hs.StatusCode >= 500 || hs.StatusCode == http.StatusTooManyRequests
	}

	if websocket.IsCloseError(closeCause(err), websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
		return false
	}
	return true
}
