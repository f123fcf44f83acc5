package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/auth"
)

// TokenHandler serves the caller's own token operations.
type TokenHandler struct {
	auth   *auth.Authentication
	logger *zap.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(a *auth.Authentication, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{auth: a, logger: logger.Named("api.tokens")}
}

// GetCurrent handles GET /api/v1/token, returning the token backing the
// request plus the suggested client-side cache time in milliseconds.
func (h *TokenHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	ht, err := h.auth.GetToken(r.Context(), token)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	cache, err := h.auth.GetSuggestedTokenCacheTime(r.Context())
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{
		"token":        toTokenJSON(ht),
		"cache_for_ms": cache.Milliseconds(),
	})
}

// Logout handles DELETE /api/v1/token, revoking the token backing the
// request. Revoking an already revoked token is not an error.
func (h *TokenHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if _, err := h.auth.RevokeCurrentToken(r.Context(), token); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// List handles GET /api/v1/tokens, returning the current token and the
// caller's other stored tokens.
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	set, err := h.auth.GetTokens(r.Context(), token)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{
		"current": toTokenJSON(set.Current),
		"tokens":  toTokensJSON(set.Tokens),
	})
}

// Create handles POST /api/v1/tokens, issuing a named extended-lifetime
// token. type selects the lifetime policy: "service" for a server token,
// anything else for a developer token. The plaintext token value appears in
// this response only.
func (h *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	nt, err := h.auth.CreateToken(r.Context(), token, req.Name, req.Type == "service")
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Created(w, toNewTokenJSON(nt))
}

// RevokeAll handles DELETE /api/v1/tokens, revoking every token the caller
// owns, including the one backing the request.
func (h *TokenHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if err := h.auth.RevokeTokens(r.Context(), token); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// Revoke handles DELETE /api/v1/tokens/{id}, revoking one of the caller's
// tokens by id.
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid token id")
		return
	}
	if err := h.auth.RevokeToken(r.Context(), token, id); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}
