package room

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/backend"
	roomService "github.com/C23038/URITOMO-Frontend/internal/service/room"
	"github.com/C23038/URITOMO-Frontend/pkg/utils"
)

// Rooms is the room lookup the handler proxies to the backend.
type Rooms interface {
	GetRoomDetail(ctx context.Context, roomID string) (roomService.Detail, error)
}

// History reads archived transcripts.
type History interface {
	History(room string, limit int) ([]meeting.ChatEntry, error)
}

type Handler struct {
	rooms   Rooms
	history History
}

// New creates the room handler. history may be nil when no archive is configured.
func New(rooms Rooms, history History) *Handler {
	return &Handler{rooms: rooms, history: history}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rooms/{roomID}", func(r chi.Router) {
		r.Get("/", h.handleGetRoom)
		r.Get("/history", h.handleHistory)
	})
}

func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	if h.rooms == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "room api unavailable")
		return
	}

	detail, err := h.rooms.GetRoomDetail(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		var statusErr *backend.StatusError
		switch {
		case errors.Is(err, roomService.ErrRoomIDRequired):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
			utils.RespondError(w, http.StatusNotFound, "room not found")
		default:
			utils.RespondError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		utils.RespondError(w, http.StatusNotFound, "archive disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := h.history.History(chi.URLParam(r, "roomID"), limit)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": entries})
}
