package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/auth"
	"github.com/authgate-io/authgate/internal/domain"
)

// UserHandler serves user profile and lookup operations available to any
// authenticated user.
type UserHandler struct {
	auth   *auth.Authentication
	logger *zap.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(a *auth.Authentication, logger *zap.Logger) *UserHandler {
	return &UserHandler{auth: a, logger: logger.Named("api.users")}
}

// GetMe handles GET /api/v1/me, returning the caller's own account.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	u, err := h.auth.GetUser(r.Context(), token)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, toUserJSON(u))
}

// UpdateMe handles PUT /api/v1/me, updating the caller's display name and
// email. Omitted fields are left unchanged.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req struct {
		Display *string `json:"display"`
		Email   *string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	var update domain.UserUpdate
	if req.Display != nil {
		display, err := domain.NewDisplayName(*req.Display)
		if err != nil {
			writeErr(w, h.logger, err)
			return
		}
		update.DisplayName = &display
	}
	if req.Email != nil {
		email, err := domain.NewEmailAddress(*req.Email)
		if err != nil {
			writeErr(w, h.logger, err)
			return
		}
		update.Email = &email
	}
	if err := h.auth.UpdateUser(r.Context(), token, update); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// RemoveOwnRoles handles DELETE /api/v1/me/roles, removing built-in roles
// from the caller's own account.
func (h *UserHandler) RemoveOwnRoles(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var req struct {
		Remove []string `json:"remove"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	remove, err := parseRoles(req.Remove)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	if err := h.auth.RemoveRoles(r.Context(), token, remove); err != nil {
		writeErr(w, h.logger, err)
		return
	}
	NoContent(w)
}

// GetUser handles GET /api/v1/users/{user}, returning the restricted view
// of another user.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	name, err := domain.NewUserName(chi.URLParam(r, "user"))
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	v, err := h.auth.GetViewableUser(r.Context(), token, name)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, toViewableUserJSON(v))
}

// GetDisplayNames handles GET /api/v1/users?list=a,b,c, mapping user names
// to display names. Non-existent users are omitted from the result.
func (h *UserHandler) GetDisplayNames(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	var names []domain.UserName
	for _, raw := range strings.Split(r.URL.Query().Get("list"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, err := domain.NewUserName(raw)
		if err != nil {
			writeErr(w, h.logger, err)
			return
		}
		names = append(names, name)
	}
	out, err := h.auth.GetUserDisplayNames(r.Context(), token, names)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, displayNamesJSON(out))
}

// Search handles GET /api/v1/users/search/{prefix}?fields=username,displayname.
// With no fields parameter both fields are searched.
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
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
	out, err := h.auth.SearchUserDisplayNames(r.Context(), token, spec)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, displayNamesJSON(out))
}

// ListCustomRoles handles GET /api/v1/customroles. Any valid token
// suffices.
func (h *UserHandler) ListCustomRoles(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	roles, err := h.auth.GetCustomRoles(r.Context(), token, false)
	if err != nil {
		writeErr(w, h.logger, err)
		return
	}
	Ok(w, customRolesJSON(roles))
}

func parseRoles(ids []string) ([]domain.Role, error) {
	out := make([]domain.Role, 0, len(ids))
	for _, id := range ids {
		role, err := domain.RoleFromID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

// applySearchFields maps the comma-separated fields parameter onto the
// search spec. An empty parameter selects both name fields.
func applySearchFields(spec *domain.UserSearchSpec, fields string) error {
	if fields == "" {
		spec.SearchUserName = true
		spec.SearchDisplayName = true
		return nil
	}
	for _, f := range strings.Split(fields, ",") {
		switch strings.TrimSpace(f) {
		case "username":
			spec.SearchUserName = true
		case "displayname":
			spec.SearchDisplayName = true
		case "":
		default:
			return domain.Errorf(domain.ErrIllegalParameter,
				"Unknown search field: %s", strings.TrimSpace(f))
		}
	}
	return nil
}

func customRolesJSON(roles []domain.CustomRole) []map[string]string {
	out := make([]map[string]string, 0, len(roles))
	for _, cr := range roles {
		out = append(out, map[string]string{
			"id":          cr.ID,
			"description": cr.Description,
		})
	}
	return out
}
