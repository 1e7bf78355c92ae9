package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/valeofeternity/vale-rooms/internal/hub"
	"github.com/valeofeternity/vale-rooms/internal/ws"
)

// SetupRoutes builds the router with the hub and user store injected.
func SetupRoutes(h *hub.Hub, users UserStore, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/users/signup", SignUp(users, logger))
	r.Post("/users/signin", SignIn(users, logger))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, logger))
	return r
}
