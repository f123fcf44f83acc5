package auth

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/domain"
	"github.com/authgate-io/authgate/internal/identity"
	"github.com/authgate-io/authgate/internal/metrics"
)

// GetIdentityProviders returns the names of the enabled identity providers
// in registration order.
func (a *Authentication) GetIdentityProviders(ctx context.Context) ([]string, error) {
	cfg, err := a.cfg.appConfig(ctx)
	if err != nil {
		return nil, err
	}
	var enabled []string
	for _, name := range a.providers.Names() {
		if cfg.ProviderConfig(name).Enabled {
			enabled = append(enabled, name)
		}
	}
	return enabled, nil
}

// GetIdentityProviderImage returns the display image URI of the named
// enabled provider.
func (a *Authentication) GetIdentityProviderImage(ctx context.Context, provider string) (*url.URL, error) {
	idp, err := a.getIdentityProvider(ctx, provider)
	if err != nil {
		return nil, err
	}
	return idp.ImageURI(), nil
}

// GetIdentityProviderURL returns the authorize redirect URL of the named
// enabled provider for the given OAuth2 state. With link set the provider's
// link redirect URI is used.
func (a *Authentication) GetIdentityProviderURL(ctx context.Context, provider, state string,
	link bool) (*url.URL, error) {
	idp, err := a.getIdentityProvider(ctx, provider)
	if err != nil {
		return nil, err
	}
	return idp.LoginURL(state, link)
}

// getIdentityProvider returns the named provider. Disabled providers are
// indistinguishable from unconfigured ones.
func (a *Authentication) getIdentityProvider(ctx context.Context, provider string) (identity.Provider, error) {
	idp, err := a.providers.Get(provider)
	if err != nil {
		return nil, err
	}
	cfg, err := a.cfg.appConfig(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.ProviderConfig(provider).Enabled {
		return nil, domain.Errorf(domain.ErrNoSuchProvider, "No such identity provider: %s", provider)
	}
	return idp, nil
}

// ProviderLogin runs the provider leg of the OAuth2 login flow: the
// authorization code is exchanged for the remote identities it grants. If
// exactly one enabled account matches and no identity is unlinked, a login
// token is issued immediately; otherwise the identities are stored under a
// temporary token and the flow continues with GetLoginState.
func (a *Authentication) ProviderLogin(ctx context.Context, provider, authcode string) (*domain.TokenOrTemp, error) {
	idp, err := a.getIdentityProvider(ctx, provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(authcode) == "" {
		return nil, domain.NewError(domain.ErrMissingParameter, "authorization code")
	}
	ris, err := idp.GetIdentities(ctx, authcode, false)
	if err != nil {
		a.metrics.ProviderCalls.WithLabelValues(provider, metrics.OutcomeFailure).Inc()
		return nil, err
	}
	a.metrics.ProviderCalls.WithLabelValues(provider, metrics.OutcomeSuccess).Inc()

	ids := mintLocalIDs(ris)
	cfg, err := a.cfg.appConfig(ctx)
	if err != nil {
		return nil, err
	}
	ls, err := a.buildLoginState(ctx, provider, ids, cfg.LoginAllowed)
	if err != nil {
		return nil, err
	}
	if name, ok := soleLoginCandidate(ls, cfg.LoginAllowed); ok {
		token, err := a.loginUser(ctx, name)
		if err != nil {
			return nil, err
		}
		a.metrics.Logins.WithLabelValues("provider", metrics.OutcomeSuccess).Inc()
		return &domain.TokenOrTemp{Token: token}, nil
	}
	tt, err := a.storeTempIdentities(ctx, ids, loginStateLifetime)
	if err != nil {
		return nil, err
	}
	return &domain.TokenOrTemp{TempToken: tt}, nil
}

// soleLoginCandidate returns the single user that may be logged in without
// interaction, if one exists.
func soleLoginCandidate(ls *domain.LoginState, loginAllowed bool) (domain.UserName, bool) {
	if len(ls.Users) != 1 || len(ls.UnlinkedIDs) != 0 {
		return domain.UserName{}, false
	}
	for name, u := range ls.UserInfo {
		if u.Disabled {
			return domain.UserName{}, false
		}
		if !loginAllowed && !domain.IsAdmin(u.Roles) {
			return domain.UserName{}, false
		}
		return name, true
	}
	return domain.UserName{}, false
}

// GetLoginState returns the state of a deferred login flow: the accounts
// the stored identities may log into and the identities available to create
// a new account.
func (a *Authentication) GetLoginState(ctx context.Context, tempToken domain.IncomingToken) (*domain.LoginState, error) {
	ids, err := a.getTempIdentities(ctx, tempToken)
	if err != nil {
		return nil, err
	}
	cfg, err := a.cfg.appConfig(ctx)
	if err != nil {
		return nil, err
	}
	return a.buildLoginState(ctx, ids[0].RemoteID.Provider, ids, cfg.LoginAllowed)
}

// buildLoginState partitions identities into those linked to accounts and
// those available for account creation. Linked identities are reported with
// the local id under which the account holds them.
func (a *Authentication) buildLoginState(ctx context.Context, provider string,
	ids []domain.RemoteIdentityWithLocalID, loginAllowed bool) (*domain.LoginState, error) {
	ls := &domain.LoginState{
		Provider:     provider,
		LoginAllowed: loginAllowed,
		Users:        map[domain.UserName][]domain.RemoteIdentityWithLocalID{},
		UserInfo:     map[domain.UserName]*domain.AuthUser{},
	}
	for _, ri := range ids {
		u, linked, err := a.storage.GetUserByIdentity(ctx, ri.RemoteIdentity)
		if err != nil {
			return nil, err
		}
		if !linked {
			ls.UnlinkedIDs = append(ls.UnlinkedIDs, ri)
			continue
		}
		li, ok := u.GetIdentity(ri.RemoteIdentity)
		if !ok {
			return nil, domain.Errorf(domain.ErrInternal,
				"User %s is linked to identity %s/%s but the identity was not returned",
				u.UserName.Name(), ri.RemoteID.Provider, ri.RemoteID.ID)
		}
		ls.Users[u.UserName] = append(ls.Users[u.UserName], li)
		ls.UserInfo[u.UserName] = u
	}
	return ls, nil
}

// CreateUser creates a new account from an identity held in deferred login
// state and logs the new user in. Account creation requires the global
// login switch to be on.
func (a *Authentication) CreateUser(ctx context.Context, tempToken domain.IncomingToken,
	identityID uuid.UUID, userName domain.UserName, displayName domain.DisplayName,
	email domain.EmailAddress) (*domain.NewToken, error) {
	if userName.IsZero() {
		return nil, domain.NewError(domain.ErrMissingParameter, "user name")
	}
	if userName.IsRoot() {
		return nil, domain.NewError(domain.ErrUnauthorized, "Cannot create ROOT user")
	}
	if displayName.IsZero() {
		return nil, domain.NewError(domain.ErrMissingParameter, "display name")
	}
	cfg, err := a.cfg.appConfig(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.LoginAllowed {
		return nil, domain.NewError(domain.ErrUnauthorized, "Account creation is disabled")
	}
	ids, err := a.getTempIdentities(ctx, tempToken)
	if err != nil {
		return nil, err
	}
	ri, ok := domain.TempIdentities{Identities: ids}.FindIdentity(identityID)
	if !ok {
		return nil, domain.Errorf(domain.ErrUnauthorized,
			"Not authorized to login with identity %s", identityID)
	}
	user := &domain.AuthUser{
		UserName:    userName,
		Email:       email,
		DisplayName: displayName,
		Identities:  []domain.RemoteIdentityWithLocalID{ri},
		Created:     time.Now(),
	}
	if err := a.storage.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	a.log.Info("created account from identity", zapUser(userName),
		zapProvider(ri.RemoteID.Provider))
	token, err := a.loginUser(ctx, userName)
	if err != nil {
		return nil, err
	}
	a.metrics.Logins.WithLabelValues("provider", metrics.OutcomeSuccess).Inc()
	return token, nil
}

// CompleteLogin logs a user in with an identity held in deferred login
// state.
func (a *Authentication) CompleteLogin(ctx context.Context, tempToken domain.IncomingToken,
	identityID uuid.UUID) (*domain.NewToken, error) {
	ids, err := a.getTempIdentities(ctx, tempToken)
	if err != nil {
		return nil, err
	}
	ri, ok := domain.TempIdentities{Identities: ids}.FindIdentity(identityID)
	if !ok {
		return nil, domain.Errorf(domain.ErrUnauthorized,
			"Not authorized to login with identity %s", identityID)
	}
	u, linked, err := a.storage.GetUserByIdentity(ctx, ri.RemoteIdentity)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, domain.NewError(domain.ErrAuthenticationFailed,
			"There is no account linked to the provided identity ID")
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
	token, err := a.loginUser(ctx, u.UserName)
	if err != nil {
		return nil, err
	}
	a.metrics.Logins.WithLabelValues("provider", metrics.OutcomeSuccess).Inc()
	return token, nil
}

// GetAvailableUserName suggests an unoccupied user name derived from the
// given string. The boolean is false when no name could be derived at all.
func (a *Authentication) GetAvailableUserName(ctx context.Context, suggested string) (domain.UserName, bool, error) {
	name, ok := domain.SanitizeUserName(suggested)
	forceNumericSuffix := false
	if !ok {
		// Nothing usable remained; fall back to a numbered generic name.
		name, _ = domain.SanitizeUserName("user")
		forceNumericSuffix = true
	}
	return a.availableUserName(ctx, name, forceNumericSuffix)
}

// availableUserName finds the first free name of the form <stem><n> where
// the stem is the suggestion with any trailing digits removed. The bare
// suggestion is preferred when it is itself free.
func (a *Authentication) availableUserName(ctx context.Context, suggested domain.UserName,
	forceNumericSuffix bool) (domain.UserName, bool, error) {
	sugName := suggested.Name()
	stem := strings.TrimRight(sugName, "0123456789")
	spec := domain.UserSearchSpec{
		Prefix:         "^" + regexp.QuoteMeta(stem) + `\d*$`,
		Regex:          true,
		SearchUserName: true,
	}
	taken, err := a.storage.SearchUserDisplayNames(ctx, spec, -1, true)
	if err != nil {
		return domain.UserName{}, false, err
	}
	exactTaken := false
	var largest int64
	for name := range taken {
		if name.Name() == sugName {
			exactTaken = true
		}
		suffix := strings.TrimPrefix(name.Name(), stem)
		n := int64(1)
		if suffix != "" {
			n, err = strconv.ParseInt(suffix, 10, 64)
			if err != nil {
				// Suffix too large to parse; skip it rather than fail the
				// suggestion.
				continue
			}
		}
		if n > largest {
			largest = n
		}
	}
	var candidate string
	switch {
	case !exactTaken && (len(stem) != len(sugName) || !forceNumericSuffix):
		candidate = sugName
	default:
		candidate = stem + strconv.FormatInt(largest+1, 10)
	}
	if len(candidate) > domain.MaxUserNameLength {
		return domain.UserName{}, false, nil
	}
	name, err := domain.NewUserName(candidate)
	if err != nil {
		return domain.UserName{}, false, err
	}
	return name, true, nil
}

// ImportUser creates an account directly from a remote identity, bypassing
// the login flow. Intended for administrative migration tooling; there is
// no authorization check since the operation is not reachable from the API.
func (a *Authentication) ImportUser(ctx context.Context, userName domain.UserName,
	ri domain.RemoteIdentity) error {
	if userName.IsZero() {
		return domain.NewError(domain.ErrMissingParameter, "user name")
	}
	if userName.IsRoot() {
		return domain.NewError(domain.ErrUnauthorized, "Cannot create ROOT user")
	}
	display, err := domain.NewDisplayName(ri.Details.Fullname)
	if err != nil {
		display = domain.UnknownDisplayName
	}
	email, err := domain.NewEmailAddress(ri.Details.Email)
	if err != nil {
		email = domain.UnknownEmail
	}
	user := &domain.AuthUser{
		UserName:    userName,
		Email:       email,
		DisplayName: display,
		Identities:  []domain.RemoteIdentityWithLocalID{ri.WithID()},
		Created:     time.Now(),
	}
	if err := a.storage.CreateUser(ctx, user); err != nil {
		return err
	}
	a.log.Info("imported account", zapUser(userName), zapProvider(ri.RemoteID.Provider))
	return nil
}

// storeTempIdentities stores an identity set under a fresh temporary token.
func (a *Authentication) storeTempIdentities(ctx context.Context,
	ids []domain.RemoteIdentityWithLocalID, lifetime time.Duration) (*domain.TemporaryToken, error) {
	plain, err := a.randGen.Token()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "Failed to generate a token", err)
	}
	tt := domain.NewTemporaryToken(plain, lifetime)
	err = a.storage.StoreTempIdentities(ctx, tt.HashedToken(), domain.TempIdentities{
		Identities: ids,
		Expires:    tt.Expires,
	})
	if err != nil {
		return nil, err
	}
	return &tt, nil
}

// getTempIdentities retrieves the identity set behind a temporary token.
// The set may be empty for a link flow whose candidates were all claimed
// before the provider leg stored them.
func (a *Authentication) getTempIdentities(ctx context.Context,
	tempToken domain.IncomingToken) ([]domain.RemoteIdentityWithLocalID, error) {
	if tempToken.IsZero() {
		return nil, domain.NewError(domain.ErrNoTokenProvided, "No user token provided")
	}
	ids, err := a.storage.GetTempIdentities(ctx, tempToken.HashedToken())
	if err != nil {
		if domain.KindOf(err, domain.ErrNoSuchToken) {
			return nil, domain.NewError(domain.ErrInvalidToken, "Invalid temporary token")
		}
		return nil, err
	}
	return ids.Identities, nil
}

// mintLocalIDs assigns fresh local ids to provider-returned identities.
func mintLocalIDs(ris []domain.RemoteIdentity) []domain.RemoteIdentityWithLocalID {
	out := make([]domain.RemoteIdentityWithLocalID, 0, len(ris))
	for _, ri := range ris {
		out = append(out, ri.WithID())
	}
	return out
}

func zapProvider(p string) zap.Field { return zap.String("provider", p) }
