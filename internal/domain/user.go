package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuthUser is a user account. Standard users carry at least one linked
// remote identity at all observable moments; local users carry none and
// authenticate by password instead.
type AuthUser struct {
	UserName    UserName
	Email       EmailAddress
	DisplayName DisplayName
	Roles       []Role
	CustomRoles []string
	Identities  []RemoteIdentityWithLocalID
	Created     time.Time
	LastLogin   *time.Time
	Disabled    bool
	// DisabledReason and DisabledBy are set only while the account is
	// disabled.
	DisabledReason string
	DisabledBy     UserName
}

// IsLocal reports whether the user is a local (password) account.
func (u *AuthUser) IsLocal() bool { return len(u.Identities) == 0 }

// IsRoot reports whether the user is the root account.
func (u *AuthUser) IsRoot() bool { return u.UserName.IsRoot() }

// HasRole reports whether the user directly possesses the role.
func (u *AuthUser) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// GrantableRoles returns the set of roles the user may grant to or remove
// from other users.
func (u *AuthUser) GrantableRoles() map[Role]bool {
	return GrantableRoles(u.Roles)
}

// GetIdentity returns the user's linked identity matching the given remote
// identity, keyed by (provider, provider-local id).
func (u *AuthUser) GetIdentity(ri RemoteIdentity) (RemoteIdentityWithLocalID, bool) {
	for _, id := range u.Identities {
		if id.RemoteID == ri.RemoteID {
			return id, true
		}
	}
	return RemoteIdentityWithLocalID{}, false
}

// LocalUser is a user authenticated by password. The password hash is a
// PBKDF2-derived key of at least 10 bytes; the salt is at least 2 bytes.
type LocalUser struct {
	AuthUser
	PasswordHash []byte
	Salt         []byte
	ForceReset   bool
	LastReset    *time.Time
}

// UserUpdate is a partial update of a user's mutable details. Nil fields
// are left unchanged.
type UserUpdate struct {
	DisplayName *DisplayName
	Email       *EmailAddress
}

// HasUpdates reports whether the update changes anything.
func (u UserUpdate) HasUpdates() bool {
	return u.DisplayName != nil || u.Email != nil
}

// UserSearchSpec describes a display-name search. With Regex set the prefix
// is interpreted as a regular expression against the selected fields; this
// form is reserved for internal use (username availability checks) and is
// never accepted from API input.
type UserSearchSpec struct {
	Prefix            string
	Regex             bool
	SearchUserName    bool
	SearchDisplayName bool
	SearchRoles       []Role
	SearchCustomRoles []string
}

// HasSearchPrefix reports whether the spec restricts matches to a prefix.
func (s UserSearchSpec) HasSearchPrefix() bool { return s.Prefix != "" }

// IsRoleSearch reports whether the spec filters on built-in roles.
func (s UserSearchSpec) IsRoleSearch() bool { return len(s.SearchRoles) > 0 }

// IsCustomRoleSearch reports whether the spec filters on custom roles.
func (s UserSearchSpec) IsCustomRoleSearch() bool { return len(s.SearchCustomRoles) > 0 }

// ViewableUser is a possibly restricted view of a user: users see their own
// email address and identities, other users do not.
type ViewableUser struct {
	UserName    UserName
	DisplayName DisplayName
	// Email is the unknown sentinel unless the viewer is the user.
	Email EmailAddress
	// Identities is nil unless the viewer is the user.
	Identities []RemoteIdentityWithLocalID
}

// NewViewableUser builds a view of user for a viewer that may or may not be
// the user themselves.
func NewViewableUser(user *AuthUser, self bool) ViewableUser {
	v := ViewableUser{
		UserName:    user.UserName,
		DisplayName: user.DisplayName,
		Email:       UnknownEmail,
	}
	if self {
		v.Email = user.Email
		v.Identities = append([]RemoteIdentityWithLocalID(nil), user.Identities...)
	}
	return v
}

// LocalLoginResult is the outcome of a local login attempt: either a new
// login token, or only the user name when a password reset is required
// before a token may be issued.
type LocalLoginResult struct {
	Token *NewToken
	// PwdResetUser is set instead of Token when the account has the
	// force-reset flag.
	PwdResetUser UserName
}

// LoginState is the state of a deferred OAuth2 login, retrieved with a
// temporary token. Identities already linked to accounts appear in Users;
// the rest are available for account creation.
type LoginState struct {
	Provider     string
	LoginAllowed bool
	// Users maps each account the caller may log into to the identities,
	// from this login attempt, that are linked to it.
	Users map[UserName][]RemoteIdentityWithLocalID
	// UserInfo carries the matched accounts themselves.
	UserInfo map[UserName]*AuthUser
	// UnlinkedIDs are identities not linked to any account, available to
	// create one.
	UnlinkedIDs []RemoteIdentityWithLocalID
}

// LinkIdentities is the state of a deferred link flow: the user performing
// the link and the identities still available to link.
type LinkIdentities struct {
	User       *AuthUser
	Identities []RemoteIdentityWithLocalID
}

// TokenOrTemp is the result of the provider leg of a login flow: exactly one
// of Token (login completed) or TempToken (user interaction required) is
// set.
type TokenOrTemp struct {
	Token     *NewToken
	TempToken *TemporaryToken
}

// LinkToken is the result of the provider leg of a link flow: a nil
// TempToken means the link completed immediately.
type LinkToken struct {
	TempToken *TemporaryToken
}

// TokenSet is a user's current token together with all their stored tokens.
type TokenSet struct {
	Current *HashedToken
	Tokens  []*HashedToken
}

// TempIdentities is a stored temporary-token continuation: the identity set
// a deferred login or link flow operates on.
type TempIdentities struct {
	Identities []RemoteIdentityWithLocalID
	Expires    time.Time
}

// FindIdentity returns the stored identity with the given local UUID.
func (t TempIdentities) FindIdentity(id uuid.UUID) (RemoteIdentityWithLocalID, bool) {
	for _, ri := range t.Identities {
		if ri.ID == id {
			return ri, true
		}
	}
	return RemoteIdentityWithLocalID{}, false
}
