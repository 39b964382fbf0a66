// Package bootstrap exchanges a meeting id for a live-session id.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/backend"
)

var (
	ErrMeetingIDRequired = errors.New("meeting id is required")
	ErrBootstrapFailed   = errors.New("session bootstrap failed")
)

type sessionBody struct {
	ID string `json:"id"`
}

// startResponse accepts both {"session":{...}} and {"data":{"session":{...}}}.
type startResponse struct {
	Session *sessionBody `json:"session"`
	Data    *struct {
		Session *sessionBody `json:"session"`
	} `json:"data"`
}

func (r startResponse) sessionID() string {
	if r.Session != nil && r.Session.ID != "" {
		return r.Session.ID
	}
	if r.Data != nil && r.Data.Session != nil {
		return r.Data.Session.ID
	}
	return ""
}

// Client performs the single live-session request. It never retries.
type Client struct {
	api *backend.Client
	log *slog.Logger
	now func() time.Time
}

func NewClient(api *backend.Client, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{api: api, log: log, now: time.Now}
}

// Start posts /meeting/{meetingID}/live-sessions and returns the session the backend assigned.
func (c *Client) Start(ctx context.Context, meetingID string) (meeting.Session, error) {
	if meetingID == "" {
		return meeting.Session{}, ErrMeetingIDRequired
	}

	path := fmt.Sprintf("/meeting/%s/live-sessions", url.PathEscape(meetingID))
	var resp startResponse
	if err := c.api.Do(ctx, http.MethodPost, path, struct{}{}, &resp); err != nil {
		return meeting.Session{}, fmt.Errorf("%w: %w", ErrBootstrapFailed, err)
	}

	id := resp.sessionID()
	if id == "" {
		return meeting.Session{}, fmt.Errorf("%w: response has no session id", ErrBootstrapFailed)
	}

	c.log.Info("live session started", "meeting", meetingID, "session", id)
	return meeting.Session{
		ID:        id,
		MeetingID: meetingID,
		Mode:      meeting.ModeExchange,
		CreatedAt: c.now().UTC(),
	}, nil
}

// Direct uses the meeting id as the session id without calling the backend.
type Direct struct{}

func (Direct) Start(_ context.Context, meetingID string) (meeting.Session, error) {
	if meetingID == "" {
		return meeting.Session{}, ErrMeetingIDRequired
	}
	return meeting.Session{
		ID:        meetingID,
		MeetingID: meetingID,
		Mode:      meeting.ModeDirect,
		CreatedAt: time.Now().UTC(),
	}, nil
}
