// Package conversation folds dispatched events into the ordered message history,
// the participant snapshot and the connected flag.
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/diagnostics"
	"github.com/C23038/URITOMO-Frontend/internal/service/dispatch"
)

var ErrUnmatchedTranslation = errors.New("translation matches no untranslated message")

const statusOnline = "online"

// ChangeKind describes what Apply did to the state.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeConnected
	ChangeParticipants
	ChangeMessageAdded
	ChangeMessageUpdated
	ChangeTranslated
	ChangeDropped
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeConnected:
		return "connected"
	case ChangeParticipants:
		return "participants"
	case ChangeMessageAdded:
		return "message_added"
	case ChangeMessageUpdated:
		return "message_updated"
	case ChangeTranslated:
		return "translated"
	case ChangeDropped:
		return "dropped"
	default:
		return "none"
	}
}

// Change is the outcome of applying one event. Index and Entry are set for message changes;
// Err is set when the event was dropped.
type Change struct {
	Kind  ChangeKind
	Index int
	Entry meeting.ChatEntry
	Err   error
}

// Reconciler is not safe for concurrent use; the owner serialises Apply and the readers.
type Reconciler struct {
	localName string
	dedupe    bool
	counters  *diagnostics.Counters
	now       func() time.Time

	messages     []meeting.ChatEntry
	byID         map[string]int
	participants []meeting.Participant
	connected    bool
}

type Option func(*Reconciler)

// WithDedupe turns redelivered chat ids into in-place updates instead of new entries.
func WithDedupe(enabled bool) Option {
	return func(r *Reconciler) { r.dedupe = enabled }
}

func WithCounters(c *diagnostics.Counters) Option {
	return func(r *Reconciler) { r.counters = c }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func New(localName string, opts ...Option) *Reconciler {
	r := &Reconciler{
		localName: localName,
		dedupe:    true,
		now:       time.Now,
		byID:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply folds one event into the state.
func (r *Reconciler) Apply(evt dispatch.Event) Change {
	switch e := evt.(type) {
	case dispatch.SessionConnected:
		r.connected = true
		return Change{Kind: ChangeConnected}
	case dispatch.MembersUpdated:
		r.participants = lo.Map(e.Members, func(m dispatch.MemberPayload, _ int) meeting.Participant {
			return meeting.Participant{
				ID:          m.ID,
				DisplayName: m.Name,
				Online:      m.Status == statusOnline,
				Avatar:      m.Avatar,
			}
		})
		return Change{Kind: ChangeParticipants}
	case dispatch.ChatReceived:
		return r.applyChat(e.ChatPayload)
	case dispatch.TranslationReceived:
		return r.applyTranslation(e.TranslationPayload)
	default:
		return Change{Kind: ChangeNone}
	}
}

func (r *Reconciler) applyChat(p dispatch.ChatPayload) Change {
	entry := meeting.ChatEntry{
		ID:          p.ID,
		RoomID:      p.RoomID,
		Sequence:    int64(p.Seq),
		SenderID:    p.SenderMemberID,
		DisplayName: p.DisplayName,
		Text:        p.Text,
		Language:    p.Lang,
		CreatedAt:   p.CreatedAt.Time,
		IsSelf:      r.isSelf(p.DisplayName),
	}

	if r.dedupe && entry.ID != "" {
		if idx, ok := r.byID[entry.ID]; ok {
			// a translation only survives a redelivery that kept the same text
			if r.messages[idx].Text == entry.Text {
				entry.Translation = r.messages[idx].Translation
			}
			r.messages[idx] = entry
			r.counters.Incr(diagnostics.DuplicateChat)
			return Change{Kind: ChangeMessageUpdated, Index: idx, Entry: entry}
		}
	}

	r.messages = append(r.messages, entry)
	idx := len(r.messages) - 1
	if entry.ID != "" {
		if _, seen := r.byID[entry.ID]; !seen {
			r.byID[entry.ID] = idx
		}
	}
	return Change{Kind: ChangeMessageAdded, Index: idx, Entry: entry}
}

func (r *Reconciler) applyTranslation(p dispatch.TranslationPayload) Change {
	if strings.TrimSpace(p.Translated) == "" {
		r.counters.Incr(diagnostics.TranslationUnmatched)
		return Change{
			Kind:  ChangeDropped,
			Index: -1,
			Err:   fmt.Errorf("%w: empty translation for %q", ErrUnmatchedTranslation, p.Original),
		}
	}

	if p.RelatedMessageID != "" {
		if idx, ok := r.byID[p.RelatedMessageID]; ok {
			if r.messages[idx].Translated() {
				r.counters.Incr(diagnostics.TranslationUnmatched)
				return Change{
					Kind:  ChangeDropped,
					Index: idx,
					Err:   fmt.Errorf("%w: message %s already translated", ErrUnmatchedTranslation, p.RelatedMessageID),
				}
			}
			r.counters.Incr(diagnostics.TranslationMatchedByID)
			return r.attach(idx, p)
		}
	}

	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Text == p.Original && !r.messages[i].Translated() {
			r.counters.Incr(diagnostics.TranslationMatchedByText)
			return r.attach(i, p)
		}
	}

	r.counters.Incr(diagnostics.TranslationUnmatched)
	return Change{
		Kind:  ChangeDropped,
		Index: -1,
		Err:   fmt.Errorf("%w: %q", ErrUnmatchedTranslation, p.Original),
	}
}

func (r *Reconciler) attach(idx int, p dispatch.TranslationPayload) Change {
	at := p.Timestamp.Time
	if at.IsZero() {
		at = r.now().UTC()
	}
	r.messages[idx].Translation = &meeting.Translation{
		Text:     p.Translated,
		Language: p.Lang,
		At:       at,
	}
	return Change{Kind: ChangeTranslated, Index: idx, Entry: r.messages[idx]}
}

func (r *Reconciler) isSelf(displayName string) bool {
	return r.localName != "" && displayName == r.localName
}

// SetLocalName changes the local user's name and re-derives IsSelf on every entry.
func (r *Reconciler) SetLocalName(name string) {
	r.localName = name
	for i := range r.messages {
		r.messages[i].IsSelf = r.isSelf(r.messages[i].DisplayName)
	}
}

func (r *Reconciler) LocalName() string {
	return r.localName
}

// ResetConnected clears the connected flag; a new socket must be acknowledged again.
func (r *Reconciler) ResetConnected() {
	r.connected = false
}

func (r *Reconciler) Connected() bool {
	return r.connected
}

// Messages returns a copy of the history. Translations are shared read-only values.
func (r *Reconciler) Messages() []meeting.ChatEntry {
	out := make([]meeting.ChatEntry, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *Reconciler) Participants() []meeting.Participant {
	out := make([]meeting.Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

func (r *Reconciler) Len() int {
	return len(r.messages)
}
