package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ntb-arenas/grocery-list-tracker/internal/grocery"
)

// codeLength matches the six-character codes users type and share aloud.
const codeLength = 6

// claimReq is the optional request body for the claim endpoint
type claimReq struct {
	Name string `json:"name,omitempty"`
}

type claimResp struct {
	Code string `json:"code"`
}

// ClaimList handles POST /v1/lists/{code}/claim. Claiming creates the list
// when absent and succeeds idempotently when it already exists; possession
// of the code is the only access control.
func (s *Server) ClaimList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	code := chi.URLParam(r, "code")

	var req claimReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := s.Svc.ClaimList(ctx, code, req.Name); err != nil {
		logger.Error().Err(err).Str("list", code).Msg("failed to claim list")
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, claimResp{Code: code})
}

// CreateList handles POST /v1/lists: mints a fresh random code and claims
// it. The claim is what makes the list exist; generation is just picking a
// name for it.
func (s *Server) CreateList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	var req claimReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}

	code := grocery.GenerateCode(codeLength)
	if err := s.Svc.ClaimList(ctx, code, req.Name); err != nil {
		logger.Error().Err(err).Str("list", code).Msg("failed to create list")
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, claimResp{Code: code})
}

// DeleteList handles DELETE /v1/lists/{code}: items first, metadata last.
func (s *Server) DeleteList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	code := chi.URLParam(r, "code")
	if err := s.Svc.DeleteList(ctx, code); err != nil {
		logger.Error().Err(err).Str("list", code).Msg("failed to delete list")
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
