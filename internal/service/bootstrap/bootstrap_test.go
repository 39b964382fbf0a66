package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/backend"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Post("/meeting/{meetingID}/live-sessions", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(backend.NewClient(srv.URL, "", time.Second, nil), nil), &calls
}

func TestStart_ReturnsSessionID(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "meeting-123", chi.URLParam(r, "meetingID"))
		_, _ = w.Write([]byte(`{"session":{"id":"sess-abc"}}`))
	})

	session, err := client.Start(context.Background(), "meeting-123")

	require.NoError(t, err)
	require.Equal(t, "sess-abc", session.ID)
	require.Equal(t, "meeting-123", session.MeetingID)
	require.Equal(t, meeting.ModeExchange, session.Mode)
	require.Equal(t, int32(1), calls.Load())
}

func TestStart_AcceptsDataEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"session":{"id":"sess-wrapped"}}}`))
	})

	session, err := client.Start(context.Background(), "m1")

	require.NoError(t, err)
	require.Equal(t, "sess-wrapped", session.ID)
}

func TestStart_EmptyMeetingIDMakesNoRequest(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.Start(context.Background(), "")

	require.ErrorIs(t, err, ErrMeetingIDRequired)
	require.Equal(t, int32(0), calls.Load())
}

func TestStart_Failures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"not json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
		"missing id": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"session":{}}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			client, calls := newTestClient(t, handler)

			_, err := client.Start(context.Background(), "m1")

			require.ErrorIs(t, err, ErrBootstrapFailed)
			require.Equal(t, int32(1), calls.Load(), "no retry expected")
		})
	}
}

func TestStart_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Start(ctx, "m1")

	require.ErrorIs(t, err, ErrBootstrapFailed)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDirect(t *testing.T) {
	session, err := Direct{}.Start(context.Background(), "room-9")
	require.NoError(t, err)
	require.Equal(t, "room-9", session.ID)
	require.Equal(t, meeting.ModeDirect, session.Mode)

	_, err = Direct{}.Start(context.Background(), "")
	require.ErrorIs(t, err, ErrMeetingIDRequired)
}
