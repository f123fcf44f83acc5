package auth

import (
	"context"
	"time"

	"github.com/authgate-io/authgate/internal/cryptoutil"
	"github.com/authgate-io/authgate/internal/domain"
	"github.com/authgate-io/authgate/internal/metrics"
)

// CreateRoot creates the root account with the given password, or resets
// the root password if the account already exists. A disabled root account
// is re-enabled. The password buffer is zeroed before return.
func (a *Authentication) CreateRoot(ctx context.Context, password []byte) error {
	defer cryptoutil.Zero(password)
	salt, err := a.randGen.Salt()
	if err != nil {
		return domain.WrapError(domain.ErrInternal, "Failed to generate a salt", err)
	}
	hash := a.hasher.Hash(password, salt)
	defer cryptoutil.Zero(hash)
	defer cryptoutil.Zero(salt)

	display, err := domain.NewDisplayName("root")
	if err != nil {
		return err
	}
	root := &domain.LocalUser{
		AuthUser: domain.AuthUser{
			UserName:    domain.Root(),
			Email:       domain.UnknownEmail,
			DisplayName: display,
			Roles:       []domain.Role{domain.RoleRoot},
			Created:     time.Now(),
		},
		PasswordHash: hash,
		Salt:         salt,
	}
	err = a.storage.CreateLocalUser(ctx, root)
	if err == nil {
		a.log.Info("created root account")
		return nil
	}
	if !domain.KindOf(err, domain.ErrUserExists) {
		return err
	}
	// The account exists; this invocation resets the password. Another
	// process may have created the account between our create and update,
	// which is fine, the end state is the same.
	if err := a.storage.ChangePassword(ctx, domain.Root(), hash, salt, false); err != nil {
		return err
	}
	u, err := a.storage.GetUser(ctx, domain.Root())
	if err != nil {
		return err
	}
	if u.Disabled {
		if err := a.storage.EnableAccount(ctx, domain.Root(), domain.Root()); err != nil {
			return err
		}
	}
	a.log.Info("reset root account password")
	return nil
}

// CreateLocalUser creates a password account with a generated temporary
// password, which is returned for out-of-band delivery and must be changed
// on first login. The caller must be an administrator.
func (a *Authentication) CreateLocalUser(ctx context.Context, adminToken domain.IncomingToken,
	userName domain.UserName, displayName domain.DisplayName,
	email domain.EmailAddress) ([]byte, error) {
	if userName.IsZero() {
		return nil, domain.NewError(domain.ErrMissingParameter, "user name")
	}
	if displayName.IsZero() {
		return nil, domain.NewError(domain.ErrMissingParameter, "display name")
	}
	admin, err := a.getUser(ctx, adminToken,
		domain.RoleRoot, domain.RoleCreateAdmin, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if userName.IsRoot() {
		return nil, domain.NewError(domain.ErrUnauthorized, "Cannot create ROOT user")
	}
	pwd, err := a.randGen.TemporaryPassword(tempPasswordLength)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "Failed to generate a password", err)
	}
	salt, err := a.randGen.Salt()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "Failed to generate a salt", err)
	}
	hash := a.hasher.Hash(pwd, salt)
	defer cryptoutil.Zero(hash)
	defer cryptoutil.Zero(salt)

	user := &domain.LocalUser{
		AuthUser: domain.AuthUser{
			UserName:    userName,
			Email:       email,
			DisplayName: displayName,
			Created:     time.Now(),
		},
		PasswordHash: hash,
		Salt:         salt,
		ForceReset:   true,
	}
	if err := a.storage.CreateLocalUser(ctx, user); err != nil {
		cryptoutil.Zero(pwd)
		return nil, err
	}
	a.log.Info("created local account", zapUser(userName), zapAdmin(admin.UserName))
	return pwd, nil
}

// LocalLogin authenticates a local user by password. If the account is
// flagged for a password reset no token is issued; the result carries the
// user name for the reset flow instead. The password buffer is zeroed
// before return.
func (a *Authentication) LocalLogin(ctx context.Context, userName domain.UserName,
	password []byte) (*domain.LocalLoginResult, error) {
	u, err := a.getLocalUser(ctx, userName, password)
	if err != nil {
		a.metrics.Logins.WithLabelValues("local", metrics.OutcomeFailure).Inc()
		return nil, err
	}
	if u.ForceReset {
		return &domain.LocalLoginResult{PwdResetUser: u.UserName}, nil
	}
	token, err := a.loginUser(ctx, u.UserName)
	if err != nil {
		return nil, err
	}
	a.metrics.Logins.WithLabelValues("local", metrics.OutcomeSuccess).Inc()
	return &domain.LocalLoginResult{Token: token}, nil
}

// getLocalUser authenticates and returns a local user. An unknown user and
// a bad password produce the same error. The password buffer is zeroed on
// every path.
func (a *Authentication) getLocalUser(ctx context.Context, userName domain.UserName,
	password []byte) (*domain.LocalUser, error) {
	defer cryptoutil.Zero(password)
	if userName.IsZero() {
		return nil, domain.NewError(domain.ErrMissingParameter, "user name")
	}
	if len(password) == 0 {
		return nil, domain.NewError(domain.ErrMissingParameter, "password")
	}
	u, err := a.storage.GetLocalUser(ctx, userName)
	if err != nil {
		if domain.KindOf(err, domain.ErrNoSuchUser) {
			return nil, domain.NewError(domain.ErrAuthenticationFailed,
				"Username / password mismatch")
		}
		return nil, err
	}
	if !a.hasher.Verify(password, u.PasswordHash, u.Salt) {
		return nil, domain.NewError(domain.ErrAuthenticationFailed,
			"Username / password mismatch")
	}
	cfg, err := a.cfg.appConfig(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.LoginAllowed && !domain.IsAdmin(u.Roles) {
		return nil, domain.NewError(domain.ErrUnauthorized, "Non-admin login is disabled")
	}
	if u.Disabled {
		return nil, domain.NewError(domain.ErrDisabled, "This account is disabled")
	}
	return u, nil
}

// LocalPasswordChange changes a local user's password after verifying the
// old one, and clears any force-reset flag. Both password buffers are
// zeroed before return.
func (a *Authentication) LocalPasswordChange(ctx context.Context, userName domain.UserName,
	oldPassword, newPassword []byte) error {
	defer cryptoutil.Zero(newPassword)
	if len(newPassword) == 0 {
		cryptoutil.Zero(oldPassword)
		return domain.NewError(domain.ErrMissingParameter, "new password")
	}
	u, err := a.getLocalUser(ctx, userName, oldPassword)
	if err != nil {
		return err
	}
	salt, err := a.randGen.Salt()
	if err != nil {
		return domain.WrapError(domain.ErrInternal, "Failed to generate a salt", err)
	}
	hash := a.hasher.Hash(newPassword, salt)
	defer cryptoutil.Zero(hash)
	defer cryptoutil.Zero(salt)
	if err := a.storage.ChangePassword(ctx, u.UserName, hash, salt, false); err != nil {
		return err
	}
	a.log.Info("local password changed", zapUser(u.UserName))
	return nil
}

// ResetPassword resets a local user's password to a generated temporary
// one, which is returned for out-of-band delivery. The caller must be an
// administrator.
func (a *Authentication) ResetPassword(ctx context.Context, adminToken domain.IncomingToken,
	userName domain.UserName) ([]byte, error) {
	if userName.IsZero() {
		return nil, domain.NewError(domain.ErrMissingParameter, "user name")
	}
	admin, err := a.getUser(ctx, adminToken, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	pwd, err := a.randGen.TemporaryPassword(tempPasswordLength)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "Failed to generate a password", err)
	}
	salt, err := a.randGen.Salt()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "Failed to generate a salt", err)
	}
	hash := a.hasher.Hash(pwd, salt)
	defer cryptoutil.Zero(hash)
	defer cryptoutil.Zero(salt)
	if err := a.storage.ChangePassword(ctx, userName, hash, salt, true); err != nil {
		cryptoutil.Zero(pwd)
		return nil, err
	}
	a.log.Info("reset local password", zapUser(userName), zapAdmin(admin.UserName))
	return pwd, nil
}

// ForceResetPassword flags a local user for a mandatory password reset on
// their next login. The caller must be an administrator.
func (a *Authentication) ForceResetPassword(ctx context.Context, adminToken domain.IncomingToken,
	userName domain.UserName) error {
	if userName.IsZero() {
		return domain.NewError(domain.ErrMissingParameter, "user name")
	}
	admin, err := a.getUser(ctx, adminToken, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := a.storage.ForcePasswordReset(ctx, userName); err != nil {
		return err
	}
	a.log.Info("forced password reset", zapUser(userName), zapAdmin(admin.UserName))
	return nil
}

// ForceResetAllPasswords flags every local user for a mandatory password
// reset. The caller must be an administrator.
func (a *Authentication) ForceResetAllPasswords(ctx context.Context,
	adminToken domain.IncomingToken) error {
	admin, err := a.getUser(ctx, adminToken, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := a.storage.ForcePasswordResetAll(ctx); err != nil {
		return err
	}
	a.log.Warn("forced password reset for all local accounts", zapAdmin(admin.UserName))
	return nil
}
