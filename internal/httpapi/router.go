// Package httpapi is the hosted HTTP surface over the grocery service. It
// is presentation glue: handlers validate input, call the service, and map
// its errors onto status codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/ntb-arenas/grocery-list-tracker/internal/grocery"
)

// Server holds dependencies for HTTP handlers
type Server struct {
	Svc *grocery.Service
}

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError writes a JSON error with the request's correlation id attached
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody{
		Error:         msg,
		CorrelationID: GetCorrelationID(r.Context()),
	})
}

// statusFor maps service errors onto HTTP status codes: precondition
// failures are the client's fault, everything else is the remote store's.
func statusFor(err error) int {
	switch {
	case errors.Is(err, grocery.ErrNoActiveList), errors.Is(err, grocery.ErrEmptyCode):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// Routes creates the HTTP router with all list and item endpoints
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})

	// Items
	r.Get("/v1/items", s.GetItems)
	r.Post("/v1/items", s.AddItem)
	r.Post("/v1/items/{combinedID}/toggle", s.ToggleItem)
	r.Post("/v1/items/mark", s.MarkItems)
	r.Post("/v1/items/delete", s.DeleteItems)

	// Personal lists
	r.Post("/v1/lists", s.CreateList)
	r.Post("/v1/lists/{code}/claim", s.ClaimList)
	r.Delete("/v1/lists/{code}", s.DeleteList)

	log.Info().Msg("HTTP routes registered")
	return r
}
