package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes.
		r.Get("/health", s.handleHealth)

		// Protected routes.
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/consoles", s.handleListConsoles)
			r.Get("/consoles/{id}", s.handleGetConsole)
			r.Post("/consoles/out", s.handleBroadcastOut)
			r.Post("/consoles/in", s.handleAggregateIn)
			r.Post("/consoles/{id}/out", s.handleDirectOut)
			r.Post("/consoles/{id}/in", s.handleDirectIn)
			r.Get("/consoles/{id}/transcript", s.handleTranscript)

			r.Get("/ws", s.handleWebSocket)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, Error{
			Status:  http.StatusMethodNotAllowed,
			Code:    ErrCodeMethodNotAllowed,
			Message: "method not allowed",
		})
	})

	return r
}

// handleHealth returns a liveness response. It requires no authentication
// so load balancers and orchestrators can probe it.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
