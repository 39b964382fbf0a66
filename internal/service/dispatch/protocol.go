package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventType is the "type" discriminator of a frame.
type EventType string

const (
	TypeSessionConnected EventType = "session_connected"
	TypeMembersUpdated   EventType = "members_updated"
	TypeChat             EventType = "chat"
	TypeTranslation      EventType = "translation"
)

// DefaultChatSendType is the outbound type used for chat frames unless configured otherwise.
const DefaultChatSendType = "chat"

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
)

// Frame is the JSON envelope shared by every inbound message.
type Frame struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MemberPayload is one entry of a members_updated snapshot.
type MemberPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Avatar string `json:"avatar,omitempty"`
}

type MembersPayload struct {
	Members []MemberPayload `json:"members"`
}

type ChatPayload struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"room_id"`
	Seq            Sequence  `json:"seq"`
	SenderMemberID string    `json:"sender_member_id"`
	DisplayName    string    `json:"display_name"`
	Text           string    `json:"text"`
	Lang           string    `json:"lang"`
	CreatedAt      Timestamp `json:"created_at"`
}

// TranslationPayload keeps the backend's field casing ("Original" is capitalised on the wire).
// RelatedMessageID is optional; older backends only send the original text.
type TranslationPayload struct {
	Original         string    `json:"Original"`
	Translated       string    `json:"translated"`
	RoomID           string    `json:"room_id"`
	RelatedMessageID string    `json:"related_message_id,omitempty"`
	ParticipantID    string    `json:"participant_id,omitempty"`
	ParticipantName  string    `json:"participant_name,omitempty"`
	Lang             string    `json:"lang,omitempty"`
	Sequence         Sequence  `json:"sequence,omitempty"`
	Timestamp        Timestamp `json:"timestamp,omitempty"`
}

// ChatSend is the outbound chat request. Lang "auto" asks the server to detect the language.
type ChatSend struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Lang        string `json:"lang"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

// Sequence accepts both JSON numbers and numeric strings; the backend sends either.
type Sequence int64

func (s *Sequence) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*s = 0
		return nil
	}
	if raw[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" {
			*s = 0
			return nil
		}
		raw = []byte(str)
	}
	val, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid sequence %q: %w", string(raw), err)
	}
	*s = Sequence(val)
	return nil
}

// Timestamp tolerates ISO-8601 values with or without a zone; zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", string(raw), err)
	}
	parsed, err := ParseTimestamp(str)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ParseTimestamp parses the timestamp formats the backend is known to emit.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", value)
}

// DecodeFrame classifies one raw frame into a typed event.
// Unknown types return ErrUnknownType; undecodable frames return ErrMalformedFrame.
func DecodeFrame(raw []byte) (Event, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch frame.Type {
	case TypeSessionConnected:
		return SessionConnected{}, nil

	case TypeMembersUpdated:
		var payload MembersPayload
		if err := decodeData(frame, &payload); err != nil {
			return nil, err
		}
		return MembersUpdated{Members: payload.Members}, nil

	case TypeChat:
		var payload ChatPayload
		if err := decodeData(frame, &payload); err != nil {
			return nil, err
		}
		return ChatReceived{ChatPayload: payload}, nil

	case TypeTranslation:
		var payload TranslationPayload
		if err := decodeData(frame, &payload); err != nil {
			return nil, err
		}
		return TranslationReceived{TranslationPayload: payload}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, frame.Type)
	}
}

func decodeData(frame Frame, target any) error {
	if len(frame.Data) == 0 || bytes.Equal(bytes.TrimSpace(frame.Data), []byte("null")) {
		return fmt.Errorf("%w: %s frame without data", ErrMalformedFrame, frame.Type)
	}
	if err := json.Unmarshal(frame.Data, target); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformedFrame, frame.Type, err)
	}
	return nil
}

// EncodeFrame serialises an outbound event.
func EncodeFrame(event any) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}
