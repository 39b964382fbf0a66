//go:generate go run go.uber.org/mock/mockgen -source=facade.go -destination=../../mocks/mock_session.go -package=mocks

// Package session ties bootstrap, transport and reconciliation together behind one facade.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/bootstrap"
	"github.com/C23038/URITOMO-Frontend/internal/service/conversation"
	"github.com/C23038/URITOMO-Frontend/internal/service/diagnostics"
	"github.com/C23038/URITOMO-Frontend/internal/service/dispatch"
	"github.com/C23038/URITOMO-Frontend/internal/service/language"
	"github.com/C23038/URITOMO-Frontend/internal/service/transport"
)

var (
	ErrSessionClosed     = errors.New("session closed")
	ErrEmptyText         = errors.New("message text is empty")
	ErrNameRequired      = errors.New("display name is required")
	ErrAlreadyStarted    = errors.New("session already started")
	ErrSendDropped       = transport.ErrSendDropped
	ErrMeetingIDRequired = bootstrap.ErrMeetingIDRequired
)

// Bootstrapper turns a meeting id into a live session.
type Bootstrapper interface {
	Start(ctx context.Context, meetingID string) (meeting.Session, error)
}

// Transport is the connection the facade drives.
type Transport interface {
	Connect(ctx context.Context)
	Send(v any) error
	OnMessage(h dispatch.Handler) func()
	OnStateChange(h transport.StateHandler) func()
	State() meeting.ConnectionState
	Disconnect()
}

// Archive persists chat entries as they change.
type Archive interface {
	StoreEntry(entry meeting.ChatEntry) error
}

// TransportFactory builds the transport for a bootstrapped session.
type TransportFactory func(s meeting.Session) (Transport, error)

type Options struct {
	MeetingID        string
	LocalName        string
	Dedupe           bool
	ChatSendType     string
	BootstrapTimeout time.Duration
}

type Option func(*Facade)

func WithArchive(a Archive) Option {
	return func(f *Facade) { f.archive = a }
}

func WithCounters(c *diagnostics.Counters) Option {
	return func(f *Facade) {
		if c != nil {
			f.counters = c
		}
	}
}

func WithLanguage(r *language.Resolver) Option {
	return func(f *Facade) { f.lang = r }
}

// Facade exposes the reconciled conversation of one meeting. All methods are safe for concurrent use.
type Facade struct {
	opts         Options
	log          *slog.Logger
	bootstrapper Bootstrapper
	newTransport TransportFactory
	archive      Archive
	counters     *diagnostics.Counters
	lang         *language.Resolver
	bus          *bus

	mu             sync.Mutex
	reconciler     *conversation.Reconciler
	session        meeting.Session
	transport      Transport
	transportState meeting.ConnectionState
	lastErr        error
	started        bool
	closed         bool
	cancel         context.CancelFunc
	unregister     []func()
	done           chan struct{}
}

func New(opts Options, bootstrapper Bootstrapper, newTransport TransportFactory, log *slog.Logger, options ...Option) *Facade {
	if log == nil {
		log = slog.Default()
	}
	if opts.ChatSendType == "" {
		opts.ChatSendType = dispatch.DefaultChatSendType
	}
	f := &Facade{
		opts:           opts,
		log:            log.With("meeting", opts.MeetingID),
		bootstrapper:   bootstrapper,
		newTransport:   newTransport,
		counters:       diagnostics.New(),
		bus:            newBus(),
		transportState: meeting.StateDisconnected,
		done:           make(chan struct{}),
	}
	for _, opt := range options {
		opt(f)
	}
	f.reconciler = conversation.New(opts.LocalName,
		conversation.WithDedupe(opts.Dedupe),
		conversation.WithCounters(f.counters),
	)
	return f
}

// Start bootstraps the session and connects in the background. It returns immediately;
// progress is visible through ConnectionState and Subscribe.
func (f *Facade) Start(ctx context.Context) error {
	if f.opts.MeetingID == "" {
		return ErrMeetingIDRequired
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrSessionClosed
	}
	if f.started {
		f.mu.Unlock()
		return ErrAlreadyStarted
	}
	f.started = true
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.transportState = meeting.StateConnecting
	f.mu.Unlock()

	f.publish(Update{Kind: UpdateState, State: meeting.StateConnecting})
	go f.run(runCtx)
	return nil
}

func (f *Facade) run(ctx context.Context) {
	defer close(f.done)

	bctx := ctx
	if f.opts.BootstrapTimeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, f.opts.BootstrapTimeout)
		defer cancel()
	}
	sess, err := f.bootstrapper.Start(bctx, f.opts.MeetingID)

	f.mu.Lock()
	if f.closed || ctx.Err() != nil {
		f.mu.Unlock()
		f.log.Debug("bootstrap finished after close, discarding")
		return
	}
	if err != nil {
		f.failLocked(err)
		f.mu.Unlock()
		f.log.Error("session bootstrap failed", "error", err)
		f.publish(Update{Kind: UpdateError, Err: err})
		f.publish(Update{Kind: UpdateState, State: meeting.StateFailed})
		return
	}

	f.session = sess
	t, err := f.newTransport(sess)
	if err != nil {
		f.failLocked(err)
		f.mu.Unlock()
		f.log.Error("transport setup failed", "session", sess.ID, "error", err)
		f.publish(Update{Kind: UpdateError, SessionID: sess.ID, Err: err})
		f.publish(Update{Kind: UpdateState, SessionID: sess.ID, State: meeting.StateFailed})
		return
	}
	f.transport = t
	f.unregister = append(f.unregister,
		t.OnStateChange(f.handleState),
		t.OnMessage(f.handleEvent),
	)
	f.mu.Unlock()

	f.log.Info("connecting live session", "session", sess.ID, "mode", sess.Mode)
	t.Connect(ctx)
}

func (f *Facade) failLocked(err error) {
	f.lastErr = err
	f.transportState = meeting.StateFailed
}

func (f *Facade) handleState(s meeting.ConnectionState) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.transportState = s
	// every new socket has to be acknowledged again
	f.reconciler.ResetConnected()
	state := f.connectionStateLocked()
	sessionID := f.session.ID
	f.mu.Unlock()

	if s == meeting.StateReconnecting || s == meeting.StateFailed {
		f.publish(Update{Kind: UpdateError, SessionID: sessionID, Err: transport.ErrConnectionDropped})
	}
	f.publish(Update{Kind: UpdateState, SessionID: sessionID, State: state})
}

func (f *Facade) handleEvent(evt dispatch.Event) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	change := f.reconciler.Apply(evt)
	sessionID := f.session.ID
	var participants []meeting.Participant
	if change.Kind == conversation.ChangeParticipants {
		participants = f.reconciler.Participants()
	}
	state := f.connectionStateLocked()
	f.mu.Unlock()

	switch change.Kind {
	case conversation.ChangeMessageAdded, conversation.ChangeMessageUpdated, conversation.ChangeTranslated:
		f.store(change.Entry)
		entry := change.Entry
		f.publish(Update{Kind: UpdateMessages, SessionID: sessionID, Index: change.Index, Entry: &entry})
	case conversation.ChangeParticipants:
		f.publish(Update{Kind: UpdateParticipants, SessionID: sessionID, Participants: participants})
	case conversation.ChangeConnected:
		f.log.Info("live session connected", "session", sessionID)
		f.publish(Update{Kind: UpdateState, SessionID: sessionID, State: state})
	case conversation.ChangeDropped:
		f.log.Debug("event dropped", "session", sessionID, "error", change.Err)
		f.publish(Update{Kind: UpdateError, SessionID: sessionID, Err: change.Err})
	}
}

func (f *Facade) store(entry meeting.ChatEntry) {
	if f.archive == nil {
		return
	}
	if err := f.archive.StoreEntry(entry); err != nil {
		f.log.Warn("archive write failed", "message", entry.ID, "error", err)
	}
}

func (f *Facade) publish(u Update) {
	if missed := f.bus.publish(u); missed > 0 {
		f.log.Debug("slow subscribers missed an update", "kind", u.Kind, "missed", missed)
	}
}

// SendText sends a chat message without waiting for an echo; the message shows up
// in Messages only once the server broadcasts it back.
func (f *Facade) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrSessionClosed
	}
	t := f.transport
	sessionID := f.session.ID
	f.mu.Unlock()

	if t == nil {
		f.counters.Incr(diagnostics.SendDropped)
		f.publish(Update{Kind: UpdateError, Err: ErrSendDropped})
		return ErrSendDropped
	}

	frame := dispatch.ChatSend{
		Type:        f.opts.ChatSendType,
		Text:        text,
		Lang:        f.lang.Resolve(text),
		ClientMsgID: uuid.NewString(),
	}
	if err := t.Send(frame); err != nil {
		f.publish(Update{Kind: UpdateError, SessionID: sessionID, Err: err})
		return err
	}
	return nil
}

// UpdateProfile changes the local display name and re-evaluates which messages are our own.
func (f *Facade) UpdateProfile(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrSessionClosed
	}
	f.opts.LocalName = name
	f.reconciler.SetLocalName(name)
	sessionID := f.session.ID
	f.mu.Unlock()

	f.publish(Update{Kind: UpdateProfile, SessionID: sessionID, Name: name})
	return nil
}

// Close tears the session down. It is idempotent and safe while bootstrap is in flight.
func (f *Facade) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	cancel, t, unregister, started := f.cancel, f.transport, f.unregister, f.started
	f.transport = nil
	f.unregister = nil
	f.transportState = meeting.StateDisconnected
	f.reconciler.ResetConnected()
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, unreg := range unregister {
		unreg()
	}
	if t != nil {
		t.Disconnect()
	}
	if !started {
		close(f.done)
	}

	f.publish(Update{Kind: UpdateState, State: meeting.StateDisconnected})
	f.bus.close()
	f.log.Info("session closed")
}

// Done is closed once the background start sequence has finished.
func (f *Facade) Done() <-chan struct{} {
	return f.done
}

// Subscribe returns a stream of updates and a function that ends the subscription.
// The channel is closed when the facade closes.
func (f *Facade) Subscribe() (<-chan Update, func()) {
	return f.bus.subscribe()
}

// ConnectionState reports connected only once the backend acknowledged the current socket.
func (f *Facade) ConnectionState() meeting.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectionStateLocked()
}

func (f *Facade) connectionStateLocked() meeting.ConnectionState {
	if f.transportState == meeting.StateConnected && !f.reconciler.Connected() {
		return meeting.StateConnecting
	}
	return f.transportState
}

func (f *Facade) Messages() []meeting.ChatEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconciler.Messages()
}

func (f *Facade) Participants() []meeting.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconciler.Participants()
}

func (f *Facade) Session() meeting.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *Facade) SessionID() string {
	return f.Session().ID
}

func (f *Facade) LocalName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts.LocalName
}

// Err returns the error that moved the session to failed, if any.
func (f *Facade) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *Facade) Stats() diagnostics.Snapshot {
	return f.counters.Snapshot()
}
