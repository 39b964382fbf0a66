package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/C23038/URITOMO-Frontend/internal/handler/relay"
	roomHandler "github.com/C23038/URITOMO-Frontend/internal/handler/room"
	sessionHandler "github.com/C23038/URITOMO-Frontend/internal/handler/session"
	"github.com/C23038/URITOMO-Frontend/internal/handler/stream"
	middlewarePkg "github.com/C23038/URITOMO-Frontend/internal/middleware"
	"github.com/C23038/URITOMO-Frontend/pkg/utils"
)

// LiveSession is everything the local API reads from or sends through the live session.
type LiveSession interface {
	sessionHandler.Session
	relay.Session
}

// Deps groups the services behind the local API. Rooms and History are optional.
type Deps struct {
	Session LiveSession
	Rooms   roomHandler.Rooms
	History roomHandler.History
	Logger  *slog.Logger
}

// NewRouter wires HTTP routes to the live session.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		if deps.Session != nil {
			sessionHandler.New(deps.Session).RegisterRoutes(api)
			stream.New(deps.Session, deps.Logger).RegisterRoutes(api)
			relay.NewWebSocketHandler(deps.Session, deps.Logger).RegisterRoutes(api)
		}
		roomHandler.New(deps.Rooms, deps.History).RegisterRoutes(api)
	})

	return r
}
