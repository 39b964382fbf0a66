// Package dispatch decodes inbound frames into typed events and fans them out to listeners.
package dispatch

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/C23038/URITOMO-Frontend/internal/service/diagnostics"
)

// Handler receives decoded events in arrival order.
type Handler func(Event)

type listener struct {
	handle  Handler
	removed atomic.Bool
}

// Dispatcher keeps listeners in registration order. Dispatch is expected to be called
// from a single goroutine (the transport read loop); registration is safe from any goroutine.
type Dispatcher struct {
	log      *slog.Logger
	counters *diagnostics.Counters

	mu        sync.RWMutex
	listeners []*listener
}

func New(log *slog.Logger, counters *diagnostics.Counters) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log, counters: counters}
}

// Register adds a listener and returns the function that removes it.
// A listener removed while an event is being delivered does not receive later events.
func (d *Dispatcher) Register(h Handler) func() {
	if h == nil {
		return func() {}
	}
	l := &listener{handle: h}

	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.removed.Store(true)
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, existing := range d.listeners {
				if existing == l {
					d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispatch decodes one raw frame and delivers it. Unknown and malformed frames are counted and skipped.
func (d *Dispatcher) Dispatch(raw []byte) {
	evt, err := DecodeFrame(raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownType):
			d.counters.Incr(diagnostics.UnknownFrame)
			d.log.Debug("ignoring frame", "error", err)
		default:
			d.counters.Incr(diagnostics.MalformedFrame)
			d.log.Warn("dropping malformed frame", "error", err)
		}
		return
	}
	d.Deliver(evt)
}

// Deliver hands an already decoded event to every registered listener.
func (d *Dispatcher) Deliver(evt Event) {
	d.mu.RLock()
	snapshot := make([]*listener, len(d.listeners))
	copy(snapshot, d.listeners)
	d.mu.RUnlock()

	for _, l := range snapshot {
		if l.removed.Load() {
			continue
		}
		l.handle(evt)
	}
}

// Reset drops every listener.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	for _, l := range d.listeners {
		l.removed.Store(true)
	}
	d.listeners = nil
	d.mu.Unlock()
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}
