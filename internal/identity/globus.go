package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/authgate-io/authgate/internal/domain"
)

// GlobusName is the provider name declared by the Globus implementation.
const GlobusName = "Globus"

const (
	globusScope          = "urn:globus:auth:scope:auth.globus.org:view_identities email"
	globusAuthorizePath  = "/v2/oauth2/authorize"
	globusTokenPath      = "/v2/oauth2/token"
	globusIntrospectPath = "/v2/oauth2/token/introspect"
	globusIdentitiesPath = "/v2/api/identities"

	// ignoreSecondaryIdentities is the custom config key that suppresses
	// hydration of secondary identities.
	ignoreSecondaryIdentities = "ignore-secondary-identities"
)

// Globus services the OAuth2 flow against Globus Auth. Globus accounts may
// carry secondary linked identities; unless suppressed by configuration,
// each one is returned as its own RemoteIdentity.
type Globus struct {
	cfg             Config
	ignoreSecondary bool
	client          *http.Client
}

// NewGlobus creates a Globus provider from the given configuration.
func NewGlobus(cfg Config) (*Globus, error) {
	if cfg.Name != GlobusName {
		return nil, domain.Errorf(domain.ErrIllegalParameter, "Bad config name: %s", cfg.Name)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Globus{
		cfg:             cfg,
		ignoreSecondary: cfg.custom(ignoreSecondaryIdentities) == "true",
		client:          &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name implements Provider.
func (g *Globus) Name() string { return GlobusName }

// ImageURI implements Provider.
func (g *Globus) ImageURI() *url.URL { return g.cfg.ImageURI }

// LoginURL implements Provider. The query is assembled by hand to control
// parameter order and encoding: scopes are percent-encoded with spaces as
// '+', which url.Values does not guarantee across parameters.
func (g *Globus) LoginURL(state string, link bool) (*url.URL, error) {
	redirect := g.cfg.LoginRedirectURL
	if link {
		redirect = g.cfg.LinkRedirectURL
	}
	raw := fmt.Sprintf("%s%s?scope=%s&state=%s&redirect_uri=%s&response_type=code&client_id=%s",
		strings.TrimSuffix(g.cfg.LoginBaseURL.String(), "/"),
		globusAuthorizePath,
		url.QueryEscape(globusScope),
		url.QueryEscape(state),
		url.QueryEscape(redirect.String()),
		url.QueryEscape(g.cfg.ClientID),
	)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal,
			fmt.Sprintf("constructed an invalid %s login url", GlobusName), err)
	}
	return u, nil
}

// GetIdentities implements Provider. The authcode is exchanged for an
// access token, the token is introspected for the primary identity and the
// identity set, and secondary identities are hydrated with a further call
// unless suppressed by configuration.
func (g *Globus) GetIdentities(ctx context.Context, authcode string, link bool) ([]domain.RemoteIdentity, error) {
	if strings.TrimSpace(authcode) == "" {
		return nil, domain.NewError(domain.ErrIllegalParameter,
			"authcode cannot be null or empty")
	}
	accessToken, err := g.exchangeCode(ctx, authcode, link)
	if err != nil {
		return nil, err
	}
	primary, secondaryIDs, err := g.introspect(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	ids := []domain.RemoteIdentity{primary}
	if len(secondaryIDs) > 0 && !g.ignoreSecondary {
		secondaries, err := g.secondaryIdentities(ctx, accessToken, secondaryIDs)
		if err != nil {
			return nil, err
		}
		ids = append(ids, secondaries...)
	}
	return ids, nil
}

// exchangeCode swaps an authorization code for an access token.
func (g *Globus) exchangeCode(ctx context.Context, authcode string, link bool) (string, error) {
	redirect := g.cfg.LoginRedirectURL
	if link {
		redirect = g.cfg.LinkRedirectURL
	}
	form := url.Values{}
	form.Set("code", authcode)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirect.String())

	var res struct {
		AccessToken *string `json:"access_token"`
	}
	if err := g.postForm(ctx, globusTokenPath, form, &res); err != nil {
		return "", err
	}
	if res.AccessToken == nil || strings.TrimSpace(*res.AccessToken) == "" {
		return "", domain.Errorf(domain.ErrIdentityRetrieval,
			"No access token was returned by %s", GlobusName)
	}
	return *res.AccessToken, nil
}

// introspect fetches the primary identity behind the access token and the
// ids of any secondary identities. The token's audience must include the
// configured client.
func (g *Globus) introspect(ctx context.Context, accessToken string) (domain.RemoteIdentity, []string, error) {
	form := url.Values{}
	form.Set("include", "identities_set")
	form.Set("token", accessToken)

	var res struct {
		Aud           []string `json:"aud"`
		Sub           string   `json:"sub"`
		Username      *string  `json:"username"`
		Name          *string  `json:"name"`
		Email         *string  `json:"email"`
		IdentitiesSet []string `json:"identities_set"`
	}
	if err := g.postForm(ctx, globusIntrospectPath, form, &res); err != nil {
		return domain.RemoteIdentity{}, nil, err
	}
	audienceOK := false
	for _, aud := range res.Aud {
		if aud == g.cfg.ClientID {
			audienceOK = true
			break
		}
	}
	if !audienceOK {
		return domain.RemoteIdentity{}, nil, domain.Errorf(domain.ErrIdentityRetrieval,
			"The audience for the %s token does not include this client", GlobusName)
	}
	primary, err := domain.NewRemoteIdentity(
		domain.RemoteIdentityID{Provider: GlobusName, ID: res.Sub},
		domain.RemoteIdentityDetails{
			Username: deref(res.Username),
			Fullname: deref(res.Name),
			Email:    deref(res.Email),
		})
	if err != nil {
		return domain.RemoteIdentity{}, nil, domain.WrapError(domain.ErrIdentityRetrieval,
			fmt.Sprintf("%s returned an invalid identity", GlobusName), err)
	}
	seen := map[string]bool{res.Sub: true}
	var secondary []string
	for _, id := range res.IdentitiesSet {
		if !seen[id] {
			seen[id] = true
			secondary = append(secondary, id)
		}
	}
	sort.Strings(secondary)
	return primary, secondary, nil
}

// secondaryIdentities hydrates the secondary identity ids into full
// identities.
func (g *Globus) secondaryIdentities(ctx context.Context, accessToken string, ids []string) ([]domain.RemoteIdentity, error) {
	u := strings.TrimSuffix(g.cfg.APIBaseURL.String(), "/") + globusIdentitiesPath +
		"?ids=" + url.QueryEscape(strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIdentityRetrieval,
			fmt.Sprintf("Failed to build %s identities request", GlobusName), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var res struct {
		Identities []struct {
			ID       string  `json:"id"`
			Username *string `json:"username"`
			Name     *string `json:"name"`
			Email    *string `json:"email"`
		} `json:"identities"`
	}
	if err := g.do(req, &res); err != nil {
		return nil, err
	}
	out := make([]domain.RemoteIdentity, 0, len(res.Identities))
	for _, ident := range res.Identities {
		ri, err := domain.NewRemoteIdentity(
			domain.RemoteIdentityID{Provider: GlobusName, ID: ident.ID},
			domain.RemoteIdentityDetails{
				Username: deref(ident.Username),
				Fullname: deref(ident.Name),
				Email:    deref(ident.Email),
			})
		if err != nil {
			return nil, domain.WrapError(domain.ErrIdentityRetrieval,
				fmt.Sprintf("%s returned an invalid identity", GlobusName), err)
		}
		out = append(out, ri)
	}
	return out, nil
}

// postForm POSTs a form to the API base with HTTP Basic client credentials
// and decodes the JSON response into out.
func (g *Globus) postForm(ctx context.Context, path string, form url.Values, out any) error {
	u := strings.TrimSuffix(g.cfg.APIBaseURL.String(), "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u,
		strings.NewReader(form.Encode()))
	if err != nil {
		return domain.WrapError(domain.ErrIdentityRetrieval,
			fmt.Sprintf("Failed to build %s request", GlobusName), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)
	return g.do(req, out)
}

func (g *Globus) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrIdentityRetrieval,
			fmt.Sprintf("Failed to contact %s", GlobusName), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return domain.Errorf(domain.ErrIdentityRetrieval,
			"Got a %d response from %s", resp.StatusCode, GlobusName)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapError(domain.ErrIdentityRetrieval,
			fmt.Sprintf("Unable to decode response from %s", GlobusName), err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
