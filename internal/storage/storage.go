// Package storage defines the persistence contract consumed by the
// authentication engine. Implementations must provide single-operation
// atomicity for each method; the engine assumes no cross-operation
// transactions.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/authgate-io/authgate/internal/domain"
)

// Storage is the persistence capability of the authentication engine. All
// token lookups are by hashed value, never plaintext. Missing entities
// surface as domain errors of the corresponding NoSuchX kind; transport and
// availability failures as domain.ErrStorage.
type Storage interface {
	// CreateUser stores a new standard user. The user must carry exactly
	// one linked identity. Returns domain.ErrUserExists if the name is
	// taken and domain.ErrIdentityLinked if the identity is already linked
	// to another user.
	CreateUser(ctx context.Context, user *domain.AuthUser) error

	// CreateLocalUser stores a new local user. Returns domain.ErrUserExists
	// if the name is taken.
	CreateLocalUser(ctx context.Context, user *domain.LocalUser) error

	// GetUser retrieves a user by name.
	GetUser(ctx context.Context, name domain.UserName) (*domain.AuthUser, error)

	// GetLocalUser retrieves a local user, including password hash and
	// salt, by name. Returns domain.ErrNoSuchUser for standard users.
	GetLocalUser(ctx context.Context, name domain.UserName) (*domain.LocalUser, error)

	// GetUserByIdentity retrieves the user linked to the remote identity,
	// matched by (provider, provider-local id). The boolean is false when
	// no user is linked to the identity.
	GetUserByIdentity(ctx context.Context, ri domain.RemoteIdentity) (*domain.AuthUser, bool, error)

	// UpdateUser applies a partial update to the user's details.
	UpdateUser(ctx context.Context, name domain.UserName, update domain.UserUpdate) error

	// SetLastLogin records the user's last login time.
	SetLastLogin(ctx context.Context, name domain.UserName, login time.Time) error

	// ChangePassword replaces a local user's password hash and salt and
	// sets the force-reset flag.
	ChangePassword(ctx context.Context, name domain.UserName, hash, salt []byte, forceReset bool) error

	// ForcePasswordReset flags a local user for a mandatory password reset
	// on next login.
	ForcePasswordReset(ctx context.Context, name domain.UserName) error

	// ForcePasswordResetAll flags every local user for a mandatory reset.
	ForcePasswordResetAll(ctx context.Context) error

	// DisableAccount disables the account, recording the administrator and
	// the reason.
	DisableAccount(ctx context.Context, name, admin domain.UserName, reason string) error

	// EnableAccount clears the disabled state.
	EnableAccount(ctx context.Context, name, admin domain.UserName) error

	// Link adds a remote identity to a standard user. Returns
	// domain.ErrIdentityLinked if the identity is linked to any user and
	// domain.ErrLinkFailed for local users.
	Link(ctx context.Context, name domain.UserName, ri domain.RemoteIdentityWithLocalID) error

	// Unlink removes the identity with the given local id from the user.
	// Returns domain.ErrUnlinkFailed if the user does not possess the
	// identity or removal would leave a standard user with no identities.
	Unlink(ctx context.Context, name domain.UserName, id uuid.UUID) error

	// GetUserDisplayNames returns the display names of the given users.
	// Non-existent names are omitted.
	GetUserDisplayNames(ctx context.Context, names []domain.UserName) (map[domain.UserName]domain.DisplayName, error)

	// SearchUserDisplayNames returns display names matching the search
	// spec, up to limit results (limit < 1 means unlimited). The root user
	// is included only when includeRoot is set.
	SearchUserDisplayNames(ctx context.Context, spec domain.UserSearchSpec, limit int, includeRoot bool) (map[domain.UserName]domain.DisplayName, error)

	// UpdateRoles adds and removes built-in roles on the user.
	UpdateRoles(ctx context.Context, name domain.UserName, add, remove []domain.Role) error

	// SetCustomRole creates the custom role, or updates its description if
	// the id exists.
	SetCustomRole(ctx context.Context, role domain.CustomRole) error

	// DeleteCustomRole removes the custom role from the system and from
	// every user possessing it.
	DeleteCustomRole(ctx context.Context, id string) error

	// GetCustomRoles returns all custom roles.
	GetCustomRoles(ctx context.Context) ([]domain.CustomRole, error)

	// UpdateCustomRoles adds and removes custom roles on the user. Returns
	// domain.ErrNoSuchRole if a role id does not exist.
	UpdateCustomRoles(ctx context.Context, name domain.UserName, add, remove []string) error

	// StoreToken persists a hashed token.
	StoreToken(ctx context.Context, token *domain.HashedToken) error

	// GetToken retrieves a token by its hashed value. Expired tokens are
	// treated as absent.
	GetToken(ctx context.Context, tokenHash string) (*domain.HashedToken, error)

	// GetTokens returns all of a user's unexpired tokens.
	GetTokens(ctx context.Context, name domain.UserName) ([]*domain.HashedToken, error)

	// DeleteToken removes the user's token with the given id.
	DeleteToken(ctx context.Context, name domain.UserName, id uuid.UUID) error

	// DeleteTokens removes all of the user's tokens.
	DeleteTokens(ctx context.Context, name domain.UserName) error

	// DeleteAllTokens removes every token in the system.
	DeleteAllTokens(ctx context.Context) error

	// DeleteExpiredTokens garbage-collects tokens past their deadline.
	DeleteExpiredTokens(ctx context.Context) error

	// StoreTempIdentities stores the identity set of a deferred login or
	// link flow under the temporary token's hash.
	StoreTempIdentities(ctx context.Context, tokenHash string, ids domain.TempIdentities) error

	// GetTempIdentities retrieves and classifies a stored identity set.
	// Expired sets are treated as absent.
	GetTempIdentities(ctx context.Context, tokenHash string) (domain.TempIdentities, error)

	// DeleteExpiredTempIdentities garbage-collects expired deferred state.
	DeleteExpiredTempIdentities(ctx context.Context) error

	// GetConfig returns the stored server configuration.
	GetConfig(ctx context.Context) (*domain.AuthConfigSet, error)

	// UpdateConfig stores the configuration. With overwrite false only
	// absent values are written; with overwrite true supplied values
	// replace stored ones.
	UpdateConfig(ctx context.Context, cfg *domain.AuthConfigSet, overwrite bool) error
}
