// Package identity defines the identity-provider capability used by the
// OAuth2 login and link flows, a registry of configured providers, and the
// Globus and Google implementations.
package identity

import (
	"context"
	"net/url"
	"strings"

	"github.com/authgate-io/authgate/internal/domain"
)

// Provider services the OAuth2 authorization-code flow for one 3rd party
// identity provider.
type Provider interface {
	// Name returns the provider's unique, case-sensitive name.
	Name() string

	// ImageURI returns the URI of the provider's display image.
	ImageURI() *url.URL

	// LoginURL builds the provider's authorize redirect URL for the given
	// opaque state. With link set the link redirect URI is used in place of
	// the login redirect URI.
	LoginURL(state string, link bool) (*url.URL, error)

	// GetIdentities exchanges the authorization code and returns the set of
	// remote identities it grants access to. The link flag selects the
	// redirect URI the code was issued against.
	GetIdentities(ctx context.Context, authcode string, link bool) ([]domain.RemoteIdentity, error)
}

// Config is the static configuration of one identity provider.
type Config struct {
	// Name must match the name declared by the provider implementation.
	Name string

	// LoginBaseURL is the base of the provider's interactive endpoints.
	LoginBaseURL *url.URL

	// APIBaseURL is the base of the provider's API endpoints.
	APIBaseURL *url.URL

	ClientID     string
	ClientSecret string

	// ImageURI locates the provider's display image.
	ImageURI *url.URL

	// LoginRedirectURL receives the browser after a login authorization.
	LoginRedirectURL *url.URL

	// LinkRedirectURL receives the browser after a link authorization.
	LinkRedirectURL *url.URL

	// Custom holds provider-specific settings, e.g.
	// "ignore-secondary-identities".
	Custom map[string]string
}

func (c Config) validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return domain.NewError(domain.ErrMissingParameter, "provider name")
	case c.LoginBaseURL == nil:
		return domain.NewError(domain.ErrMissingParameter, "login url")
	case c.APIBaseURL == nil:
		return domain.NewError(domain.ErrMissingParameter, "api url")
	case strings.TrimSpace(c.ClientID) == "":
		return domain.NewError(domain.ErrMissingParameter, "client id")
	case strings.TrimSpace(c.ClientSecret) == "":
		return domain.NewError(domain.ErrMissingParameter, "client secret")
	case c.ImageURI == nil:
		return domain.NewError(domain.ErrMissingParameter, "image uri")
	case c.LoginRedirectURL == nil:
		return domain.NewError(domain.ErrMissingParameter, "login redirect url")
	case c.LinkRedirectURL == nil:
		return domain.NewError(domain.ErrMissingParameter, "link redirect url")
	}
	return nil
}

// custom returns the custom setting for the key, or "".
func (c Config) custom(key string) string {
	if c.Custom == nil {
		return ""
	}
	return c.Custom[key]
}

// Registry is a frozen name-to-provider map. Provider availability is
// further gated at runtime by the enabled flag in the server configuration;
// the registry itself only knows which providers are configured.
type Registry struct {
	providers map[string]Provider
	order     []string
}

// NewRegistry builds a registry from the given providers. Names must be
// unique.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: map[string]Provider{}}
	for _, p := range providers {
		if _, ok := r.providers[p.Name()]; ok {
			return nil, domain.Errorf(domain.ErrIllegalParameter,
				"Duplicate identity provider: %s", p.Name())
		}
		r.providers[p.Name()] = p
		r.order = append(r.order, p.Name())
	}
	return r, nil
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.Errorf(domain.ErrNoSuchProvider, "No such identity provider: %s", name)
	}
	return p, nil
}

// Names returns the provider names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
