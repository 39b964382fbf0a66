package stream

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	sessionService "github.com/C23038/URITOMO-Frontend/internal/service/session"
	"github.com/C23038/URITOMO-Frontend/pkg/utils"
)

const defaultKeepAlive = 15 * time.Second

// Source is what the stream handler needs from the live session.
type Source interface {
	Subscribe() (<-chan sessionService.Update, func())
	Session() meeting.Session
	ConnectionState() meeting.ConnectionState
	LocalName() string
	Messages() []meeting.ChatEntry
	Participants() []meeting.Participant
}

// Snapshot is the first event of every stream.
type Snapshot struct {
	Session      meeting.Session         `json:"session"`
	State        meeting.ConnectionState `json:"state"`
	LocalName    string                  `json:"localName"`
	Messages     []meeting.ChatEntry     `json:"messages"`
	Participants []meeting.Participant   `json:"participants"`
}

// Handler pushes session updates to local consumers over Server-Sent Events.
type Handler struct {
	source    Source
	log       *slog.Logger
	keepAlive time.Duration
}

func New(source Source, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{source: source, log: log, keepAlive: defaultKeepAlive}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// subscribe before the snapshot so nothing published in between is lost
	updates, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	snapshot := Snapshot{
		Session:      h.source.Session(),
		State:        h.source.ConnectionState(),
		LocalName:    h.source.LocalName(),
		Messages:     h.source.Messages(),
		Participants: h.source.Participants(),
	}
	if err := utils.SendSSEEvent(w, flusher, "snapshot", snapshot); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	h.log.Debug("stream opened", "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			h.log.Debug("stream closed by client", "remote", r.RemoteAddr)
			return
		case update, ok := <-updates:
			if !ok {
				_ = utils.SendSSEEvent(w, flusher, "closed", map[string]string{"sessionId": snapshot.Session.ID})
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(update.Kind), update); err != nil {
				h.log.Debug("stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		}
	}
}
