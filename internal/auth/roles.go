package auth

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/domain"
)

// UpdateRoles adds and removes built-in roles on a user. The caller may
// only grant roles their own roles make grantable, and may only remove
// such roles from other users; a user may always remove their own roles.
// The root account's roles cannot be changed at all.
func (a *Authentication) UpdateRoles(ctx context.Context, userToken domain.IncomingToken,
	userName domain.UserName, add, remove []domain.Role) error {
	if userName.IsZero() {
		return domain.NewError(domain.ErrMissingParameter, "user name")
	}
	if userName.IsRoot() {
		return domain.NewError(domain.ErrUnauthorized, "Cannot change ROOT roles")
	}
	if both := intersectRoles(add, remove); len(both) > 0 {
		return domain.Errorf(domain.ErrIllegalParameter,
			"One or more roles is to be both removed and added: %s",
			strings.Join(domain.RoleDescriptions(both), ", "))
	}
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	acting, err := a.getUser(ctx, userToken)
	if err != nil {
		return err
	}
	grantable := acting.GrantableRoles()
	if forbidden := rolesOutside(add, grantable); len(forbidden) > 0 {
		return domain.Errorf(domain.ErrUnauthorized,
			"Not authorized to grant role(s): %s",
			strings.Join(domain.RoleDescriptions(forbidden), ", "))
	}
	if acting.UserName != userName {
		if forbidden := rolesOutside(remove, grantable); len(forbidden) > 0 {
			return domain.Errorf(domain.ErrUnauthorized,
				"Not authorized to remove role(s): %s",
				strings.Join(domain.RoleDescriptions(forbidden), ", "))
		}
	}
	if err := a.storage.UpdateRoles(ctx, userName, add, remove); err != nil {
		return err
	}
	a.log.Info("updated roles", zapUser(userName), zapAdmin(acting.UserName))
	return nil
}

// RemoveRoles removes built-in roles from the caller's own account. Any
// role may be self-removed except the root role.
func (a *Authentication) RemoveRoles(ctx context.Context, token domain.IncomingToken,
	remove []domain.Role) error {
	u, err := a.getUser(ctx, token)
	if err != nil {
		return err
	}
	for _, r := range remove {
		if r == domain.RoleRoot {
			return domain.NewError(domain.ErrUnauthorized, "Cannot change ROOT roles")
		}
	}
	if len(remove) == 0 {
		return nil
	}
	if err := a.storage.UpdateRoles(ctx, u.UserName, nil, remove); err != nil {
		return err
	}
	a.log.Info("self-removed roles", zapUser(u.UserName))
	return nil
}

// SetCustomRole creates a custom role or updates its description. The
// caller must be an administrator.
func (a *Authentication) SetCustomRole(ctx context.Context, adminToken domain.IncomingToken,
	role domain.CustomRole) error {
	admin, err := a.getUser(ctx, adminToken, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := a.storage.SetCustomRole(ctx, role); err != nil {
		return err
	}
	a.log.Info("set custom role", zap.String("role", role.ID), zapAdmin(admin.UserName))
	return nil
}

// DeleteCustomRole removes a custom role from the system and from every
// user holding it. The caller must be an administrator.
func (a *Authentication) DeleteCustomRole(ctx context.Context, adminToken domain.IncomingToken,
	roleID string) error {
	if strings.TrimSpace(roleID) == "" {
		return domain.NewError(domain.ErrMissingParameter, "roleId cannot be null or empty")
	}
	admin, err := a.getUser(ctx, adminToken, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := a.storage.DeleteCustomRole(ctx, roleID); err != nil {
		return err
	}
	a.log.Info("deleted custom role", zap.String("role", roleID), zapAdmin(admin.UserName))
	return nil
}

// GetCustomRoles returns all custom roles. With forceAdmin set the caller
// must be an administrator; otherwise any valid token suffices.
func (a *Authentication) GetCustomRoles(ctx context.Context, token domain.IncomingToken,
	forceAdmin bool) ([]domain.CustomRole, error) {
	if forceAdmin {
		if _, err := a.getUser(ctx, token,
			domain.RoleRoot, domain.RoleCreateAdmin, domain.RoleAdmin); err != nil {
			return nil, err
		}
	} else if _, err := a.getToken(ctx, token); err != nil {
		return nil, err
	}
	return a.storage.GetCustomRoles(ctx)
}

// UpdateCustomRoles adds and removes custom roles on a user. The caller
// must be an administrator.
func (a *Authentication) UpdateCustomRoles(ctx context.Context, adminToken domain.IncomingToken,
	userName domain.UserName, add, remove []string) error {
	if userName.IsZero() {
		return domain.NewError(domain.ErrMissingParameter, "user name")
	}
	if both := intersectStrings(add, remove); len(both) > 0 {
		sort.Strings(both)
		return domain.Errorf(domain.ErrIllegalParameter,
			"One or more roles is to be both removed and added: %s",
			strings.Join(both, ", "))
	}
	admin, err := a.getUser(ctx, adminToken, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	if err := a.storage.UpdateCustomRoles(ctx, userName, add, remove); err != nil {
		return err
	}
	a.log.Info("updated custom roles", zapUser(userName), zapAdmin(admin.UserName))
	return nil
}

func intersectRoles(a, b []domain.Role) []domain.Role {
	in := map[domain.Role]bool{}
	for _, r := range a {
		in[r] = true
	}
	var out []domain.Role
	for _, r := range b {
		if in[r] {
			out = append(out, r)
			in[r] = false
		}
	}
	return out
}

func intersectStrings(a, b []string) []string {
	in := map[string]bool{}
	for _, s := range a {
		in[s] = true
	}
	var out []string
	for _, s := range b {
		if in[s] {
			out = append(out, s)
			in[s] = false
		}
	}
	return out
}

// rolesOutside returns the deduplicated roles not present in allowed.
func rolesOutside(roles []domain.Role, allowed map[domain.Role]bool) []domain.Role {
	seen := map[domain.Role]bool{}
	var out []domain.Role
	for _, r := range roles {
		if !allowed[r] && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
