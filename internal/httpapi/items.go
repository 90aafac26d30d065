package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ntb-arenas/grocery-list-tracker/internal/grocery"
)

// addItemReq is the request body for POST /v1/items
type addItemReq struct {
	Scope string `json:"scope"` // "global" or "list"
	Code  string `json:"code,omitempty"`
	Name  string `json:"name"`
}

// toggleReq is the request body for the toggle endpoint
type toggleReq struct {
	Completed bool `json:"completed"` // current value, the item is set to its negation
}

// markReq is the request body for POST /v1/items/mark
type markReq struct {
	IDs       []string `json:"ids"`
	Completed bool     `json:"completed"`
}

// deleteReq is the request body for POST /v1/items/delete
type deleteReq struct {
	IDs []string `json:"ids"`
}

type itemsResp struct {
	Items []grocery.Item `json:"items"`
}

// GetItems handles GET /v1/items. With ?list=<code> the personal list is
// merged in; without it only global items are returned.
func (s *Server) GetItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	code := r.URL.Query().Get("list")
	items, err := s.Svc.FetchCombined(ctx, code)
	if err != nil {
		logger.Error().Err(err).Str("list", code).Msg("failed to fetch items")
		writeError(w, r, http.StatusBadGateway, "failed to fetch items")
		return
	}
	if items == nil {
		items = []grocery.Item{}
	}
	writeJSON(w, http.StatusOK, itemsResp{Items: items})
}

// AddItem handles POST /v1/items
func (s *Server) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}

	var scope grocery.Scope
	switch req.Scope {
	case "", "global":
		scope = grocery.Global
	case "list":
		scope = grocery.Personal(req.Code)
	default:
		writeError(w, r, http.StatusBadRequest, "scope must be \"global\" or \"list\"")
		return
	}

	// Blank names are a no-op, mirrored as 204 rather than an error.
	if strings.TrimSpace(req.Name) == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.Svc.AddItem(ctx, scope, req.Name); err != nil {
		logger.Error().Err(err).Msg("failed to add item")
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ToggleItem handles POST /v1/items/{combinedID}/toggle
func (s *Server) ToggleItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	combinedID := chi.URLParam(r, "combinedID")
	var req toggleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := s.Svc.ToggleItem(ctx, combinedID, req.Completed); err != nil {
		logger.Error().Err(err).Str("item", combinedID).Msg("failed to toggle item")
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkItems handles POST /v1/items/mark
func (s *Server) MarkItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	var req markReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := s.Svc.MarkItems(ctx, req.IDs, req.Completed); err != nil {
		// Some updates may have landed; the client re-derives from the
		// next snapshot.
		logger.Error().Err(err).Int("count", len(req.IDs)).Msg("bulk mark failed")
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteItems handles POST /v1/items/delete
func (s *Server) DeleteItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	var req deleteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := s.Svc.DeleteItems(ctx, req.IDs); err != nil {
		logger.Error().Err(err).Int("count", len(req.IDs)).Msg("bulk delete failed")
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
