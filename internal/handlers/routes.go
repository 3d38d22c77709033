// internal/handlers/routes.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/bikelane/internal/middleware"
)

// NewRouter mounts the guess game endpoints:
//
//	GET  /ping               liveness
//	POST /guessgame/create   create a game
//	GET  /guessgame/hub      hub websocket
//	GET  /guessgame/{code}   does the game exist
func NewRouter(gs *GameServer, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/guessgame", func(r chi.Router) {
		r.With(middleware.LogMiddleware(gs.Logger)).Post("/create", CreateGameHandler(gs))
		r.Get("/hub", HubWSHandler(gs))
		r.With(middleware.LogMiddleware(gs.Logger)).Get("/{code}", GameExistsHandler(gs))
	})
	return r
}
