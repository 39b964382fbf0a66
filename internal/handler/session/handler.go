package session

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/diagnostics"
	sessionService "github.com/C23038/URITOMO-Frontend/internal/service/session"
	"github.com/C23038/URITOMO-Frontend/pkg/utils"
)

// Session is the part of the live session facade the HTTP API exposes.
type Session interface {
	Session() meeting.Session
	ConnectionState() meeting.ConnectionState
	LocalName() string
	Messages() []meeting.ChatEntry
	Participants() []meeting.Participant
	SendText(text string) error
	UpdateProfile(name string) error
	Stats() diagnostics.Snapshot
}

// Handler serves the live session state to local consumers.
type Handler struct {
	session Session
}

func New(session Session) *Handler {
	return &Handler{session: session}
}

// RegisterRoutes mounts the session endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.handleGetSession)
	r.Get("/messages", h.handleListMessages)
	r.Post("/messages", h.handleSendMessage)
	r.Get("/participants", h.handleListParticipants)
	r.Post("/profile", h.handleUpdateProfile)
	r.Get("/stats", h.handleStats)
}

type sessionResponse struct {
	meeting.Session
	State     meeting.ConnectionState `json:"state"`
	LocalName string                  `json:"localName"`
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, sessionResponse{
		Session:   h.session.Session(),
		State:     h.session.ConnectionState(),
		LocalName: h.session.LocalName(),
	})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": h.session.Messages()})
}

func (h *Handler) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{"participants": h.session.Participants()})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.session.Stats())
}

// handleSendMessage accepts the text and returns immediately; the message appears in
// /messages once the backend broadcasts it.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.session.SendText(payload.Text); err != nil {
		switch {
		case errors.Is(err, sessionService.ErrEmptyText):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, sessionService.ErrSendDropped):
			utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, sessionService.ErrSessionClosed):
			utils.RespondError(w, http.StatusGone, err.Error())
		default:
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.session.UpdateProfile(payload.Name); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, sessionService.ErrNameRequired):
			status = http.StatusBadRequest
		case errors.Is(err, sessionService.ErrSessionClosed):
			status = http.StatusGone
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"name": h.session.LocalName()})
}
