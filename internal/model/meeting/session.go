package meeting

import "time"

// Mode selects how a meeting identifier turns into a live-session identifier.
type Mode string

const (
	// ModeExchange posts the meeting (room) id to the backend and uses the returned session id.
	ModeExchange Mode = "exchange"
	// ModeDirect treats the meeting id as the session id and skips the bootstrap call.
	ModeDirect Mode = "direct"
)

// Session identifies one live meeting instance.
type Session struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meetingId"`
	Mode      Mode      `json:"mode"`
	CreatedAt time.Time `json:"createdAt"`
}
