package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/auth"
	"github.com/authgate-io/authgate/internal/cryptoutil"
	"github.com/authgate-io/authgate/internal/domain"
)

// AdminHandler serves the administrative operations. Authorization is
// enforced by the engine against the caller's roles.
type AdminHandler struct {
	auth   *auth.Authentication
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(a *auth.Authentication, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{auth: a, logger: logger.Named("api.admin")}
}

func userParam(r *http.Request) (domain.UserName, error) {
	return domain.NewUserName(chi.URLParam(r, "user"))
}

// CreateLocalUser handles POST /api/v1/admin/localuser. The generated
// temporary password appears in this response only and must be changed on
// first login.
func (h *AdminHandler) CreateLocalUser(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req struct {
		User    string `json:"user"`
		Display string `json:"display"`
		Email   string `json:"email"`
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
	pwd, err := h.auth.CreateLocalUser(r.Context(), token, name, display, email)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Created(w, map[string]string{
		"user":     name.Name(),
		"password": string(pwd),
	})
	cryptoutil.Zero(pwd)
}

// GetUser handles GET /api/v1/admin/user/{user}, returning the full
// account including roles and disabled state.
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	name, err := userParam(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	u, err := h.auth.GetUserAsAdmin(r.Context(), token, name)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, toUserJSON(u))
}

// DisableUser handles PUT /api/v1/admin/user/{user}/disable. Disabling
// requires a reason and revokes the account's tokens; disable=false
// re-enables the account.
func (h *AdminHandler) DisableUser(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	name, err := userParam(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req struct {
		Disable bool   `json:"disable"`
		Reason  string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.DisableAccount(r.Context(), token, name, req.Disable, req.Reason); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// ResetPassword handles PUT /api/v1/admin/user/{user}/reset, setting a
// generated temporary password on a local account. The password appears in
// this response only.
func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	name, err := userParam(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	pwd, err := h.auth.ResetPassword(r.Context(), token, name)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, map[string]string{"password": string(pwd)})
	cryptoutil.Zero(pwd)
}

// ForceResetPassword handles PUT /api/v1/admin/user/{user}/forcereset,
// flagging a local account so the next login demands a password change.
func (h *AdminHandler) ForceResetPassword(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	name, err := userParam(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if err := h.auth.ForceResetPassword(r.Context(), token, name); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// ForceResetAllPasswords handles PUT /api/v1/admin/forcereset, flagging
// every local account for a password change.
func (h *AdminHandler) ForceResetAllPasswords(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if err := h.auth.ForceResetAllPasswords(r.Context(), token); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// UpdateRoles handles PUT /api/v1/admin/user/{user}/roles, adding and
// removing built-in roles on the target account.
func (h *AdminHandler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	name, err := userParam(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req struct {
		Add    []string `json:"add"`
		Remove []string `json:"remove"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	add, err := parseRoles(req.Add)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	remove, err := parseRoles(req.Remove)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if err := h.auth.UpdateRoles(r.Context(), token, name, add, remove); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// UpdateCustomRoles handles PUT /api/v1/admin/user/{user}/customroles.
func (h *AdminHandler) UpdateCustomRoles(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	name, err := userParam(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req struct {
		Add    []string `json:"add"`
		Remove []string `json:"remove"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.UpdateCustomRoles(r.Context(), token, name, req.Add, req.Remove); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// GetUserTokens handles GET /api/v1/admin/user/{user}/tokens.
func (h *AdminHandler) GetUserTokens(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	name, err := userParam(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	tokens, err := h.auth.GetUserTokens(r.Context(), token, name)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, map[string]any{"tokens": toTokensJSON(tokens)})
}

// RevokeUserTokens handles DELETE /api/v1/admin/user/{user}/tokens.
func (h *AdminHandler) RevokeUserTokens(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	name, err := userParam(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if err := h.auth.RevokeAllUserTokens(r.Context(), token, name); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// RevokeUserToken handles DELETE /api/v1/admin/user/{user}/tokens/{id}.
func (h *AdminHandler) RevokeUserToken(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	name, err := userParam(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid token id")
		return
	}
	if err := h.auth.RevokeUserToken(r.Context(), token, name, id); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// RevokeAllTokens handles DELETE /api/v1/admin/tokens, revoking every token
// in the system including the caller's own.
func (h *AdminHandler) RevokeAllTokens(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if err := h.auth.RevokeAllTokens(r.Context(), token); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// ListCustomRoles handles GET /api/v1/admin/customroles.
func (h *AdminHandler) ListCustomRoles(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	roles, err := h.auth.GetCustomRoles(r.Context(), token, true)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, customRolesJSON(roles))
}

// SetCustomRole handles PUT /api/v1/admin/customroles, creating the role or
// replacing its description.
func (h *AdminHandler) SetCustomRole(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := domain.NewCustomRole(req.ID, req.Description)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if err := h.auth.SetCustomRole(r.Context(), token, role); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// DeleteCustomRole handles DELETE /api/v1/admin/customroles/{id}. The role
// is removed from every user holding it.
func (h *AdminHandler) DeleteCustomRole(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if err := h.auth.DeleteCustomRole(r.Context(), token, chi.URLParam(r, "id")); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// Search handles GET /api/v1/admin/search/{prefix}. In addition to the
// fields parameter it accepts roles and customroles filters, which are
// restricted to administrators by the engine.
func (h *AdminHandler) Search(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	spec := domain.UserSearchSpec{Prefix: chi.URLParam(r, "prefix")}
	if err := applySearchFields(&spec, r.URL.Query().Get("fields")); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if raw := r.URL.Query().Get("roles"); raw != "" {
		roles, err := parseRoles(splitList(raw))
		if err != nil {
			writeErr(w, h.logger, err)
			return
		}
		spec.SearchRoles = roles
	}
	spec.SearchCustomRoles = splitList(r.URL.Query().Get("customroles"))
	out, err := h.auth.SearchUserDisplayNames(r.Context(), token, spec)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, displayNamesJSON(out))
}

// GetConfig handles GET /api/v1/admin/config, returning the current stored
// configuration.
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	cfg, err := h.auth.GetConfig(r.Context(), token)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, toConfigJSON(cfg))
}

// UpdateConfig handles PUT /api/v1/admin/config, overwriting the submitted
// portions of the configuration. Provider entries must name registered
// providers and lifetimes must be positive.
func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req configJSON
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := fromConfigJSON(req)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if err := h.auth.UpdateConfig(r.Context(), token, cfg); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

func fromConfigJSON(in configJSON) (*domain.AuthConfigSet, error) {
	cfg := &domain.AuthConfigSet{
		Config: domain.AuthConfig{
			LoginAllowed:   in.LoginAllowed,
			Providers:      map[string]domain.ProviderConfig{},
			TokenLifetimes: map[domain.TokenLifetimeType]time.Duration{},
		},
		External: in.External,
	}
	for name, pc := range in.Providers {
		cfg.Config.Providers[name] = domain.ProviderConfig{
			Enabled:          pc.Enabled,
			ForceLoginChoice: pc.ForceLoginChoice,
			ForceLinkChoice:  pc.ForceLinkChoice,
		}
	}
	for key, ms := range in.Lifetimes {
		lt, ok := lifetimeType(key)
		if !ok {
			return nil, domain.Errorf(domain.ErrIllegalParameter,
				"Unknown token lifetime type: %s", key)
		}
		cfg.Config.TokenLifetimes[lt] = time.Duration(ms) * time.Millisecond
	}
	return cfg, nil
}

func lifetimeType(key string) (domain.TokenLifetimeType, bool) {
	for _, lt := range []domain.TokenLifetimeType{
		domain.LifetimeLogin, domain.LifetimeDev,
		domain.LifetimeServ, domain.LifetimeExtCache,
	} {
		if lt.String() == key {
			return lt, true
		}
	}
	return 0, false
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
