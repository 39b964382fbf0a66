// Package diagnostics counts the events the session layer drops or recovers from,
// so that silent discards become observable.
package diagnostics

import "sync/atomic"

// Kind names one counter.
type Kind int

const (
	Sent Kind = iota
	SendDropped
	TranslationMatchedByID
	TranslationMatchedByText
	TranslationUnmatched
	DuplicateChat
	MalformedFrame
	UnknownFrame
	Reconnect
	numKinds
)

var kindNames = [numKinds]string{
	Sent:                     "sent",
	SendDropped:              "send_dropped",
	TranslationMatchedByID:   "translation_matched_by_id",
	TranslationMatchedByText: "translation_matched_by_text",
	TranslationUnmatched:     "translation_unmatched",
	DuplicateChat:            "duplicate_chat",
	MalformedFrame:           "malformed_frame",
	UnknownFrame:             "unknown_frame",
	Reconnect:                "reconnect",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// Counters is safe for concurrent use. A nil *Counters ignores increments.
type Counters struct {
	values [numKinds]atomic.Uint64
}

func New() *Counters {
	return &Counters{}
}

// Incr adds one to the counter of the given kind.
func (c *Counters) Incr(kind Kind) {
	if c == nil || kind < 0 || kind >= numKinds {
		return
	}
	c.values[kind].Add(1)
}

// Get returns the current value of one counter.
func (c *Counters) Get(kind Kind) uint64 {
	if c == nil || kind < 0 || kind >= numKinds {
		return 0
	}
	return c.values[kind].Load()
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Sent                     uint64  `json:"sent"`
	SendDropped              uint64  `json:"sendDropped"`
	TranslationMatchedByID   uint64  `json:"translationMatchedById"`
	TranslationMatchedByText uint64  `json:"translationMatchedByText"`
	TranslationUnmatched     uint64  `json:"translationUnmatched"`
	DuplicateChat            uint64  `json:"duplicateChat"`
	MalformedFrame           uint64  `json:"malformedFrame"`
	UnknownFrame             uint64  `json:"unknownFrame"`
	Reconnect                uint64  `json:"reconnect"`
	FallbackMatchRate        float64 `json:"fallbackMatchRate"`
}

func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		Sent:                     c.Get(Sent),
		SendDropped:              c.Get(SendDropped),
		TranslationMatchedByID:   c.Get(TranslationMatchedByID),
		TranslationMatchedByText: c.Get(TranslationMatchedByText),
		TranslationUnmatched:     c.Get(TranslationUnmatched),
		DuplicateChat:            c.Get(DuplicateChat),
		MalformedFrame:           c.Get(MalformedFrame),
		UnknownFrame:             c.Get(UnknownFrame),
		Reconnect:                c.Get(Reconnect),
	}
	if matched := s.TranslationMatchedByID + s.TranslationMatchedByText; matched > 0 {
		s.FallbackMatchRate = float64(s.TranslationMatchedByText) / float64(matched)
	}
	return s
}
