package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/auth"
	"github.com/authgate-io/authgate/internal/domain"
)

// LoginHandler serves the local-login and provider-login flows.
type LoginHandler struct {
	auth   *auth.Authentication
	logger *zap.Logger
}

// NewLoginHandler creates a LoginHandler.
func NewLoginHandler(a *auth.Authentication, logger *zap.Logger) *LoginHandler {
	return &LoginHandler{auth: a, logger: logger.Named("api.login")}
}

// LocalLogin handles POST /api/v1/login/local. A successful login returns a
// new login token; an account flagged for a password reset returns the user
// name with reset_required set instead.
func (h *LoginHandler) LocalLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	name, err := domain.NewUserName(req.User)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	res, err := h.auth.LocalLogin(r.Context(), name, []byte(req.Password))
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if res.Token == nil {
		Ok(w, map[string]any{
			"reset_required": true,
			"user":           res.PwdResetUser.Name(),
		})
		return
	}
	Ok(w, toNewTokenJSON(res.Token))
}

// ChangePassword handles PUT /api/v1/login/local/password. The old password
// must be valid; the flow is also used to clear a forced reset.
func (h *LoginHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User        string `json:"user"`
		Password    string `json:"password"`
		NewPassword string `json:"new_password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	name, err := domain.NewUserName(req.User)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	err = h.auth.LocalPasswordChange(r.Context(), name,
		[]byte(req.Password), []byte(req.NewPassword))
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// ListProviders handles GET /api/v1/providers, returning the names of the
// enabled identity providers in registration order.
func (h *LoginHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	provs, err := h.auth.GetIdentityProviders(r.Context())
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if provs == nil {
		provs = []string{}
	}
	Ok(w, map[string]any{"providers": provs})
}

// StartLogin handles GET /api/v1/providers/{provider}/login, returning the
// provider's authorization URL for the given OAuth2 state.
func (h *LoginHandler) StartLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	state := r.URL.Query().Get("state")
	if state == "" {
		ErrBadRequest(w, "state is required")
		return
	}
	u, err := h.auth.GetIdentityProviderURL(r.Context(), provider, state, false)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, map[string]string{"url": u.String()})
}

// ProviderImage handles GET /api/v1/providers/{provider}/image.
func (h *LoginHandler) ProviderImage(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.GetIdentityProviderImage(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, map[string]string{"url": u.String()})
}

// CompleteProviderLogin handles POST /api/v1/login/complete with the
// authorization code from the provider redirect. The response carries either
// a login token, when exactly one enabled account matched, or a temporary
// token for the account-choice flow.
func (h *LoginHandler) CompleteProviderLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
		Code     string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.auth.ProviderLogin(r.Context(), req.Provider, req.Code)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if res.Token != nil {
		Ok(w, map[string]any{"token": toNewTokenJSON(res.Token)})
		return
	}
	Ok(w, map[string]any{"temp_token": toTempTokenJSON(res.TempToken)})
}

// LoginChoice handles GET /api/v1/login/choice. The temporary token from
// CompleteProviderLogin selects the deferred state; the response lists the
// accounts available for login and the identities available for account
// creation.
func (h *LoginHandler) LoginChoice(w http.ResponseWriter, r *http.Request) {
	tt, err := tempToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	state, err := h.auth.GetLoginState(r.Context(), tt)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	type loginAccount struct {
		User       string         `json:"user"`
		Display    string         `json:"display"`
		Disabled   bool           `json:"disabled"`
		AdminLogin bool           `json:"admin_login"`
		Identities []identityJSON `json:"identities"`
	}
	accounts := make([]loginAccount, 0, len(state.Users))
	for name, ids := range state.Users {
		u := state.UserInfo[name]
		accounts = append(accounts, loginAccount{
			User:       name.Name(),
			Display:    u.DisplayName.Name(),
			Disabled:   u.Disabled,
			AdminLogin: domain.IsAdmin(u.Roles),
			Identities: toIdentitiesJSON(ids),
		})
	}
	Ok(w, map[string]any{
		"provider":      state.Provider,
		"login_allowed": state.LoginAllowed,
		"accounts":      accounts,
		"create":        toIdentitiesJSON(state.UnlinkedIDs),
	})
}

// PickAccount handles POST /api/v1/login/pick, completing a deferred login
// with one of the identities from the choice state.
func (h *LoginHandler) PickAccount(w http.ResponseWriter, r *http.Request) {
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
	token, err := h.auth.CompleteLogin(r.Context(), tt, req.ID)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, toNewTokenJSON(token))
}

// CreateAccount handles POST /api/v1/login/create, creating an account from
// one of the unlinked identities in the choice state and logging it in.
func (h *LoginHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	tt, err := tempToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req struct {
		ID      uuid.UUID `json:"id"`
		User    string    `json:"user"`
		Display string    `json:"display"`
		Email   string    `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	name, err := domain.NewUserName(req.User)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	display, err := domain.NewDisplayName(req.Display)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	email := domain.UnknownEmail
	if req.Email != "" {
		email, err = domain.NewEmailAddress(req.Email)
		if err != nil {
			writeErr(w, h.logger, err)
			return
		}
	}
	token, err := h.auth.CreateUser(r.Context(), tt, req.ID, name, display, email)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Created(w, toNewTokenJSON(token))
}

// SuggestName handles GET /api/v1/login/suggestname/{name}, deriving an
// unoccupied user name from the given string. availablename is empty when
// nothing valid could be derived.
func (h *LoginHandler) SuggestName(w http.ResponseWriter, r *http.Request) {
	name, ok, err := h.auth.GetAvailableUserName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	suggestion := ""
	if ok {
		suggestion = name.Name()
	}
	Ok(w, map[string]string{"availablename": suggestion})
}
