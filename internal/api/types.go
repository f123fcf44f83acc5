package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/authgate-io/authgate/internal/domain"
)

// identityJSON is the wire form of a linked or pending remote identity. ID
// is the server-local UUID used to select the identity in the login, link
// and unlink operations.
type identityJSON struct {
	ID       uuid.UUID `json:"id"`
	Provider string    `json:"provider"`
	ProvID   string    `json:"provider_user_id"`
	Username string    `json:"username,omitempty"`
	Fullname string    `json:"fullname,omitempty"`
	Email    string    `json:"email,omitempty"`
}

func toIdentityJSON(ri domain.RemoteIdentityWithLocalID) identityJSON {
	return identityJSON{
		ID:       ri.ID,
		Provider: ri.RemoteID.Provider,
		ProvID:   ri.RemoteID.ID,
		Username: ri.Details.Username,
		Fullname: ri.Details.Fullname,
		Email:    ri.Details.Email,
	}
}

func toIdentitiesJSON(ids []domain.RemoteIdentityWithLocalID) []identityJSON {
	out := make([]identityJSON, 0, len(ids))
	for _, ri := range ids {
		out = append(out, toIdentityJSON(ri))
	}
	return out
}

// userJSON is the full administrative view of a user account.
type userJSON struct {
	User           string         `json:"user"`
	Display        string         `json:"display"`
	Email          string         `json:"email"`
	Local          bool           `json:"local"`
	Roles          []string       `json:"roles"`
	CustomRoles    []string       `json:"custom_roles"`
	Identities     []identityJSON `json:"identities"`
	Created        time.Time      `json:"created"`
	LastLogin      *time.Time     `json:"last_login,omitempty"`
	Disabled       bool           `json:"disabled"`
	DisabledReason string         `json:"disabled_reason,omitempty"`
	DisabledBy     string         `json:"disabled_by,omitempty"`
}

func toUserJSON(u *domain.AuthUser) userJSON {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, r.ID())
	}
	custom := u.CustomRoles
	if custom == nil {
		custom = []string{}
	}
	out := userJSON{
		User:           u.UserName.Name(),
		Display:        u.DisplayName.Name(),
		Email:          u.Email.String(),
		Local:          u.IsLocal(),
		Roles:          roles,
		CustomRoles:    custom,
		Identities:     toIdentitiesJSON(u.Identities),
		Created:        u.Created,
		LastLogin:      u.LastLogin,
		Disabled:       u.Disabled,
		DisabledReason: u.DisabledReason,
	}
	if !u.DisabledBy.IsZero() {
		out.DisabledBy = u.DisabledBy.Name()
	}
	return out
}

// viewableUserJSON is the restricted view of a user another user may see.
// Email and identities are populated only when the viewer is the user.
type viewableUserJSON struct {
	User       string         `json:"user"`
	Display    string         `json:"display"`
	Email      string         `json:"email,omitempty"`
	Identities []identityJSON `json:"identities,omitempty"`
}

func toViewableUserJSON(v domain.ViewableUser) viewableUserJSON {
	out := viewableUserJSON{
		User:    v.UserName.Name(),
		Display: v.DisplayName.Name(),
	}
	if !v.Email.IsUnknown() {
		out.Email = v.Email.Address()
	}
	if v.Identities != nil {
		out.Identities = toIdentitiesJSON(v.Identities)
	}
	return out
}

// tokenJSON is the wire form of a stored token. The token value itself is
// never included; see newTokenJSON.
type tokenJSON struct {
	ID      uuid.UUID `json:"id"`
	Type    string    `json:"type"`
	Name    string    `json:"name,omitempty"`
	User    string    `json:"user"`
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
}

func toTokenJSON(t *domain.HashedToken) tokenJSON {
	return tokenJSON{
		ID:      t.ID,
		Type:    t.Type.String(),
		Name:    t.Name,
		User:    t.UserName.Name(),
		Created: t.Created,
		Expires: t.Expires,
	}
}

func toTokensJSON(ts []*domain.HashedToken) []tokenJSON {
	out := make([]tokenJSON, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTokenJSON(t))
	}
	return out
}

// newTokenJSON carries a freshly issued token. This is the only place the
// plaintext token value ever appears in a response.
type newTokenJSON struct {
	tokenJSON
	Token string `json:"token"`
}

func toNewTokenJSON(t *domain.NewToken) newTokenJSON {
	return newTokenJSON{
		tokenJSON: toTokenJSON(&t.HashedToken),
		Token:     t.Token,
	}
}

// tempTokenJSON carries a temporary token for a deferred login or link flow.
type tempTokenJSON struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

func toTempTokenJSON(t *domain.TemporaryToken) tempTokenJSON {
	return tempTokenJSON{Token: t.Token, Expires: t.Expires}
}

// displayNamesJSON converts a search or lookup result to a plain
// name-to-display-name map.
func displayNamesJSON(m map[domain.UserName]domain.DisplayName) map[string]string {
	out := make(map[string]string, len(m))
	for name, display := range m {
		out[name.Name()] = display.Name()
	}
	return out
}

// configJSON is the wire form of the server configuration.
type configJSON struct {
	LoginAllowed bool                          `json:"login_allowed"`
	Providers    map[string]providerConfigJSON `json:"providers"`
	// Lifetimes maps lifetime type to milliseconds.
	Lifetimes map[string]int64  `json:"token_lifetimes_ms"`
	External  map[string]string `json:"external"`
}

type providerConfigJSON struct {
	Enabled          bool `json:"enabled"`
	ForceLoginChoice bool `json:"force_login_choice"`
	ForceLinkChoice  bool `json:"force_link_choice"`
}

func toConfigJSON(cfg *domain.AuthConfigSet) configJSON {
	out := configJSON{
		LoginAllowed: cfg.Config.LoginAllowed,
		Providers:    map[string]providerConfigJSON{},
		Lifetimes:    map[string]int64{},
		External:     map[string]string{},
	}
	for name, pc := range cfg.Config.Providers {
		out.Providers[name] = providerConfigJSON{
			Enabled:          pc.Enabled,
			ForceLoginChoice: pc.ForceLoginChoice,
			ForceLinkChoice:  pc.ForceLinkChoice,
		}
	}
	for lt, d := range cfg.Config.TokenLifetimes {
		out.Lifetimes[lt.String()] = d.Milliseconds()
	}
	for k, v := range cfg.External {
		out.External[k] = v
	}
	return out
}
