package session

import (
	"sync"
	"time"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
)

// UpdateKind tags what changed in an Update.
type UpdateKind string

const (
	UpdateMessages     UpdateKind = "messages"
	UpdateParticipants UpdateKind = "participants"
	UpdateState        UpdateKind = "state"
	UpdateProfile      UpdateKind = "profile"
	UpdateError        UpdateKind = "error"
)

// Update is one notification on the session stream.
type Update struct {
	Kind         UpdateKind              `json:"kind"`
	SessionID    string                  `json:"sessionId,omitempty"`
	Index        int                     `json:"index"`
	Entry        *meeting.ChatEntry      `json:"entry,omitempty"`
	Participants []meeting.Participant   `json:"participants,omitempty"`
	State        meeting.ConnectionState `json:"state,omitempty"`
	Name         string                  `json:"name,omitempty"`
	Err          error                   `json:"-"`
	Error        string                  `json:"error,omitempty"`
	At           time.Time               `json:"at"`
}

const subscriberBuffer = 64

// bus fans updates out to subscribers. Publishing never blocks: a full subscriber misses the update.
type bus struct {
	mu     sync.Mutex
	subs   map[uint64]chan Update
	nextID uint64
	closed bool
}

func newBus() *bus {
	return &bus{subs: make(map[uint64]chan Update)}
}

func (b *bus) subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// publish returns the number of subscribers that missed the update.
func (b *bus) publish(u Update) int {
	if u.At.IsZero() {
		u.At = time.Now().UTC()
	}
	if u.Err != nil && u.Error == "" {
		u.Error = u.Err.Error()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	missed := 0
	for _, ch := range b.subs {
		select {
		case ch <- u:
		default:
			missed++
		}
	}
	return missed
}

func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
