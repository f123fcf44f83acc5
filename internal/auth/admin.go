package auth

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/domain"
)

// GetUser returns the account behind the token.
func (a *Authentication) GetUser(ctx context.Context, token domain.IncomingToken) (*domain.AuthUser, error) {
	return a.getUser(ctx, token)
}

// GetUserAsAdmin returns any user's full record. The caller must be an
// administrator.
func (a *Authentication) GetUserAsAdmin(ctx context.Context, adminToken domain.IncomingToken,
	userName domain.UserName) (*domain.AuthUser, error) {
	if userName.IsZero() {
		return nil, domain.NewError(domain.ErrMissingParameter, "user name")
	}
	if _, err := a.getUser(ctx, adminToken,
		domain.RoleRoot, domain.RoleCreateAdmin, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return a.storage.GetUser(ctx, userName)
}

// GetViewableUser returns a view of the named user. Viewers other than the
// user themselves see only the user and display names.
func (a *Authentication) GetViewableUser(ctx context.Context, token domain.IncomingToken,
	userName domain.UserName) (domain.ViewableUser, error) {
	if userName.IsZero() {
		return domain.ViewableUser{}, domain.NewError(domain.ErrMissingParameter, "user name")
	}
	caller, err := a.getUser(ctx, token)
	if err != nil {
		return domain.ViewableUser{}, err
	}
	target, err := a.storage.GetUser(ctx, userName)
	if err != nil {
		return domain.ViewableUser{}, err
	}
	return domain.NewViewableUser(target, caller.UserName == userName), nil
}

// GetUserDisplayNames returns the display names of the given users.
// Non-existent users are omitted. Any valid token suffices.
func (a *Authentication) GetUserDisplayNames(ctx context.Context, token domain.IncomingToken,
	userNames []domain.UserName) (map[domain.UserName]domain.DisplayName, error) {
	if _, err := a.getToken(ctx, token); err != nil {
		return nil, err
	}
	if len(userNames) > maxDisplayNameResults {
		return nil, domain.Errorf(domain.ErrIllegalParameter,
			"User count exceeds maximum of %d", maxDisplayNameResults)
	}
	if len(userNames) == 0 {
		return map[domain.UserName]domain.DisplayName{}, nil
	}
	return a.storage.GetUserDisplayNames(ctx, userNames)
}

// SearchUserDisplayNames returns display names matching the search spec.
// Role searches are restricted to administrators; regular-expression
// searches are reserved for internal use and rejected here.
func (a *Authentication) SearchUserDisplayNames(ctx context.Context, token domain.IncomingToken,
	spec domain.UserSearchSpec) (map[domain.UserName]domain.DisplayName, error) {
	u, err := a.getUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if spec.Regex {
		return nil, domain.NewError(domain.ErrUnauthorized, "Regex search is not allowed")
	}
	if (spec.IsRoleSearch() || spec.IsCustomRoleSearch()) && !domain.IsAdmin(u.Roles) {
		return nil, domain.NewError(domain.ErrUnauthorized, "Only admins may search on roles")
	}
	return a.storage.SearchUserDisplayNames(ctx, spec, maxDisplayNameResults, false)
}

// DisableAccount disables or re-enables an account. Disabling requires a
// reason and revokes every token the account holds. Only the root user may
// disable the root account, and the root account cannot be re-enabled here;
// recreating it via CreateRoot is the recovery path.
func (a *Authentication) DisableAccount(ctx context.Context, adminToken domain.IncomingToken,
	userName domain.UserName, disable bool, reason string) error {
	if userName.IsZero() {
		return domain.NewError(domain.ErrMissingParameter, "user name")
	}
	admin, err := a.getUser(ctx, adminToken,
		domain.RoleRoot, domain.RoleCreateAdmin, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if !disable {
		if userName.IsRoot() {
			return domain.NewError(domain.ErrUnauthorized,
				"The root user cannot be enabled via this method")
		}
		if err := a.storage.EnableAccount(ctx, userName, admin.UserName); err != nil {
			return err
		}
		a.log.Info("enabled account", zapUser(userName), zapAdmin(admin.UserName))
		return nil
	}
	if userName.IsRoot() && !admin.IsRoot() {
		return domain.NewError(domain.ErrUnauthorized,
			"Only the root user can disable the root account")
	}
	if strings.TrimSpace(reason) == "" {
		return domain.NewError(domain.ErrMissingParameter,
			"Must provide a reason why the account was disabled")
	}
	// Immediately stop any use of the account.
	if err := a.storage.DeleteTokens(ctx, userName); err != nil {
		return err
	}
	if err := a.storage.DisableAccount(ctx, userName, admin.UserName, reason); err != nil {
		return err
	}
	// A concurrent login may have read the user before the disable and
	// stored a token after the first delete. Delete again to close the
	// window.
	if err := a.storage.DeleteTokens(ctx, userName); err != nil {
		return err
	}
	a.log.Warn("disabled account", zapUser(userName), zapAdmin(admin.UserName),
		zap.String("reason", reason))
	return nil
}

// UpdateUser applies a partial update to the caller's own display name and
// email address.
func (a *Authentication) UpdateUser(ctx context.Context, token domain.IncomingToken,
	update domain.UserUpdate) error {
	u, err := a.getUser(ctx, token)
	if err != nil {
		return err
	}
	if !update.HasUpdates() {
		return nil
	}
	return a.storage.UpdateUser(ctx, u.UserName, update)
}

// GetConfig returns the full stored configuration, bypassing the cache so
// administrators always see current values. The caller must be an
// administrator.
func (a *Authentication) GetConfig(ctx context.Context, adminToken domain.IncomingToken) (*domain.AuthConfigSet, error) {
	if _, err := a.getUser(ctx, adminToken, domain.RoleAdmin); err != nil {
		return nil, err
	}
	a.cfg.invalidate()
	return a.cfg.get(ctx)
}

// GetExternalConfig returns the external configuration values owned by
// outer layers.
func (a *Authentication) GetExternalConfig(ctx context.Context) (map[string]string, error) {
	cfg, err := a.cfg.get(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(cfg.External))
	for k, v := range cfg.External {
		out[k] = v
	}
	return out, nil
}

// UpdateConfig stores the supplied configuration values, replacing any
// stored ones. Provider entries must name configured providers and token
// lifetimes must be positive. The caller must be an administrator.
func (a *Authentication) UpdateConfig(ctx context.Context, adminToken domain.IncomingToken,
	cfgSet *domain.AuthConfigSet) error {
	admin, err := a.getUser(ctx, adminToken, domain.RoleAdmin)
	if err != nil {
		return err
	}
	for name := range cfgSet.Config.Providers {
		if _, err := a.providers.Get(name); err != nil {
			return err
		}
	}
	for lt, d := range cfgSet.Config.TokenLifetimes {
		if d <= 0 {
			return domain.Errorf(domain.ErrIllegalParameter,
				"%s token lifetime must be positive", lt)
		}
	}
	if err := a.storage.UpdateConfig(ctx, cfgSet, true); err != nil {
		return err
	}
	a.cfg.invalidate()
	a.log.Info("updated configuration", zapAdmin(admin.UserName))
	return nil
}
