package domain

import (
	"time"
)

// ProviderConfig is the per-identity-provider portion of the server
// configuration.
type ProviderConfig struct {
	Enabled bool
	// ForceLoginChoice forces the account-choice screen on login even when
	// exactly one account matches.
	ForceLoginChoice bool
	// ForceLinkChoice forces the identity-choice screen on link even when
	// exactly one candidate remains.
	ForceLinkChoice bool
}

// DefaultProviderConfig is the configuration a newly registered provider
// receives: disabled until an administrator enables it.
var DefaultProviderConfig = ProviderConfig{}

// Default token lifetimes, used for lifetime types with no stored value.
const (
	DefaultLifetimeLogin    = 14 * 24 * time.Hour
	DefaultLifetimeDev      = 90 * 24 * time.Hour
	DefaultLifetimeServ     = 100_000 * 24 * time.Hour
	DefaultLifetimeExtCache = 5 * time.Minute
)

// DefaultLoginAllowed is the initial global login policy: non-admin login
// is disabled until an administrator turns it on.
const DefaultLoginAllowed = false

// AuthConfig is the server configuration: the global login switch, the
// per-provider settings, and the token lifetime policy.
type AuthConfig struct {
	LoginAllowed   bool
	Providers      map[string]ProviderConfig
	TokenLifetimes map[TokenLifetimeType]time.Duration
}

// DefaultAuthConfig returns the default configuration for the given
// provider names.
func DefaultAuthConfig(providers []string) AuthConfig {
	provs := make(map[string]ProviderConfig, len(providers))
	for _, p := range providers {
		provs[p] = DefaultProviderConfig
	}
	return AuthConfig{
		LoginAllowed: DefaultLoginAllowed,
		Providers:    provs,
		TokenLifetimes: map[TokenLifetimeType]time.Duration{
			LifetimeLogin:    DefaultLifetimeLogin,
			LifetimeDev:      DefaultLifetimeDev,
			LifetimeServ:     DefaultLifetimeServ,
			LifetimeExtCache: DefaultLifetimeExtCache,
		},
	}
}

// ProviderConfig returns the configuration for the named provider, or the
// default (disabled) configuration if none is stored.
func (c AuthConfig) ProviderConfig(provider string) ProviderConfig {
	if pc, ok := c.Providers[provider]; ok {
		return pc
	}
	return DefaultProviderConfig
}

// TokenLifetime returns the configured lifetime for the given type, falling
// back to the default when no value is stored.
func (c AuthConfig) TokenLifetime(t TokenLifetimeType) time.Duration {
	if d, ok := c.TokenLifetimes[t]; ok {
		return d
	}
	switch t {
	case LifetimeDev:
		return DefaultLifetimeDev
	case LifetimeServ:
		return DefaultLifetimeServ
	case LifetimeExtCache:
		return DefaultLifetimeExtCache
	}
	return DefaultLifetimeLogin
}

// AuthConfigSet is the full stored configuration: the engine's AuthConfig
// plus free-form external settings owned by outer layers (UI redirect URLs
// and the like).
type AuthConfigSet struct {
	Config   AuthConfig
	External map[string]string
}
