package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/auth"
)

// LinkHandler serves the identity link and unlink flows. All operations
// require the caller's login token; the deferred choice steps additionally
// take the temporary token issued by Complete.
type LinkHandler struct {
	auth   *auth.Authentication
	logger *zap.Logger
}

// NewLinkHandler creates a LinkHandler.
func NewLinkHandler(a *auth.Authentication, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{auth: a, logger: logger.Named("api.link")}
}

// Start handles GET /api/v1/link/start/{provider}, returning the provider's
// authorization URL for the link flow.
func (h *LinkHandler) Start(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	state := r.URL.Query().Get("state")
	if state == "" {
		ErrBadRequest(w, "state is required")
		return
	}
	u, err := h.auth.GetIdentityProviderURL(r.Context(), provider, state, true)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, map[string]string{"url": u.String()})
}

// Complete handles POST /api/v1/link/complete with the authorization code
// from the provider redirect. When exactly one linkable identity was
// returned and the provider does not force a choice, the link happens
// immediately and the response carries linked=true; otherwise a temporary
// token for the choice flow is returned.
func (h *LinkHandler) Complete(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req struct {
		Provider string `json:"provider"`
		Code     string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.auth.ProviderLink(r.Context(), token, req.Provider, req.Code)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if res.TempToken == nil {
		Ok(w, map[string]any{"linked": true})
		return
	}
	Ok(w, map[string]any{"temp_token": toTempTokenJSON(res.TempToken)})
}

// Choice handles GET /api/v1/link/choice, listing the identities still
// available to link under the temporary token.
func (h *LinkHandler) Choice(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	tt, err := tempToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	state, err := h.auth.GetLinkState(r.Context(), token, tt)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{
		"user":       state.User.UserName.Name(),
		"identities": toIdentitiesJSON(state.Identities),
	})
}

// Pick handles POST /api/v1/link/pick, linking one of the identities from
// the choice state to the caller's account.
func (h *LinkHandler) Pick(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	tt, err := tempToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req struct {
		ID uuid.UUID `json:"id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.CompleteLink(r.Context(), token, tt, req.ID); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// Unlink handles DELETE /api/v1/me/identities/{id}, removing the identity
// with the given local id from the caller's account. The last identity of
// an account cannot be removed.
func (h *LinkHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid identity id")
		return
	}
	if err := h.auth.Unlink(r.Context(), token, id); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}
