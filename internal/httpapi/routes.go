package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobby-backend/internal/hub"
	"github.com/DoyleJ11/lobby-backend/internal/profiles"
	"github.com/DoyleJ11/lobby-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, resolver profiles.Resolver, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Post("/lobbies", CreateLobby(h, resolver, log))
	r.Get("/lobbies", ListLobbies(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log))
	return r
}
