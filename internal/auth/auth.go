// Package auth implements the authentication engine: token issuance and
// validation, local (password) accounts, the OAuth2 login and link state
// machines, role-based authorization, and administrative operations. The
// engine owns all policy; the transport layer only translates requests and
// errors.
package auth

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/cryptoutil"
	"github.com/authgate-io/authgate/internal/domain"
	"github.com/authgate-io/authgate/internal/identity"
	"github.com/authgate-io/authgate/internal/metrics"
	"github.com/authgate-io/authgate/internal/storage"
)

const (
	// loginStateLifetime is the TTL of temporary tokens carrying deferred
	// login state.
	loginStateLifetime = 30 * time.Minute

	// linkStateLifetime is the TTL of temporary tokens carrying deferred
	// link state.
	linkStateLifetime = 10 * time.Minute

	// tempPasswordLength is the length of generated temporary passwords.
	tempPasswordLength = 10

	// maxDisplayNameResults caps user display-name lookups and searches.
	maxDisplayNameResults = 10000
)

// Authentication is the authentication engine. All methods are safe for
// concurrent use.
type Authentication struct {
	storage   storage.Storage
	providers *identity.Registry
	hasher    *cryptoutil.PasswordHasher
	randGen   *cryptoutil.RandomGenerator
	cfg       *configCache
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// Deps carries the engine's constructor dependencies.
type Deps struct {
	Storage   storage.Storage
	Providers *identity.Registry
	Logger    *zap.Logger
	Metrics   *metrics.Metrics

	// DefaultExternalConfig seeds external configuration values that are
	// not already stored. Existing values are never overwritten.
	DefaultExternalConfig map[string]string
}

// New creates the engine, seeding any unset configuration values with their
// defaults.
func New(ctx context.Context, deps Deps) (*Authentication, error) {
	if deps.Storage == nil {
		return nil, domain.NewError(domain.ErrMissingParameter, "storage")
	}
	if deps.Providers == nil {
		return nil, domain.NewError(domain.ErrMissingParameter, "identity provider registry")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}
	defaults := &domain.AuthConfigSet{
		Config:   domain.DefaultAuthConfig(deps.Providers.Names()),
		External: deps.DefaultExternalConfig,
	}
	if err := deps.Storage.UpdateConfig(ctx, defaults, false); err != nil {
		return nil, err
	}
	cache, err := newConfigCache(ctx, deps.Storage, deps.Metrics)
	if err != nil {
		return nil, err
	}
	return &Authentication{
		storage:   deps.Storage,
		providers: deps.Providers,
		hasher:    cryptoutil.NewPasswordHasher(),
		randGen:   cryptoutil.NewRandomGenerator(),
		cfg:       cache,
		metrics:   deps.Metrics,
		log:       deps.Logger.Named("auth"),
	}, nil
}

// getToken resolves an incoming token to its stored record. Unknown and
// expired tokens are indistinguishable to the caller.
func (a *Authentication) getToken(ctx context.Context, token domain.IncomingToken) (*domain.HashedToken, error) {
	if token.IsZero() {
		return nil, domain.NewError(domain.ErrNoTokenProvided, "No user token provided")
	}
	ht, err := a.storage.GetToken(ctx, token.HashedToken())
	if err != nil {
		if domain.KindOf(err, domain.ErrNoSuchToken) {
			return nil, domain.NewError(domain.ErrInvalidToken, "Invalid token")
		}
		return nil, err
	}
	return ht, nil
}

// getUser resolves an incoming token to its live user, enforcing the
// disabled check and, when roles are given, that the user's expanded role
// set intersects them.
func (a *Authentication) getUser(ctx context.Context, token domain.IncomingToken,
	required ...domain.Role) (*domain.AuthUser, error) {
	ht, err := a.getToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return a.getUserFromToken(ctx, ht, required...)
}

func (a *Authentication) getUserFromToken(ctx context.Context, ht *domain.HashedToken,
	required ...domain.Role) (*domain.AuthUser, error) {
	u, err := a.storage.GetUser(ctx, ht.UserName)
	if err != nil {
		if domain.KindOf(err, domain.ErrNoSuchUser) {
			// A valid token without a user record is a storage invariant
			// violation.
			return nil, domain.NewError(domain.ErrInternal,
				"There seems to be an error in the storage system. Token was valid, but no user")
		}
		return nil, err
	}
	if u.Disabled {
		// The account was disabled after the token was issued. Clean up.
		if err := a.storage.DeleteTokens(ctx, u.UserName); err != nil {
			return nil, err
		}
		return nil, domain.NewError(domain.ErrDisabled, "This account is disabled")
	}
	if len(required) > 0 {
		has := domain.IncludedRoles(u.Roles)
		authorized := false
		for _, r := range required {
			if has[r] {
				authorized = true
				break
			}
		}
		if !authorized {
			return nil, domain.NewError(domain.ErrUnauthorized, "")
		}
	}
	return u, nil
}

// loginUser issues a fresh login token for the user and records the login
// time.
func (a *Authentication) loginUser(ctx context.Context, userName domain.UserName) (*domain.NewToken, error) {
	cfg, err := a.cfg.appConfig(ctx)
	if err != nil {
		return nil, err
	}
	token, err := a.randGen.Token()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "Failed to generate a token", err)
	}
	nt := domain.NewLoginToken(token, userName, cfg.TokenLifetime(domain.LifetimeLogin))
	if err := a.storage.StoreToken(ctx, &nt.HashedToken); err != nil {
		return nil, err
	}
	if err := a.storage.SetLastLogin(ctx, userName, time.Now()); err != nil {
		if domain.KindOf(err, domain.ErrNoSuchUser) {
			return nil, domain.NewError(domain.ErrInternal,
				"There seems to be an error in the storage system. User logged in but does not exist")
		}
		return nil, err
	}
	a.metrics.TokensIssued.WithLabelValues(domain.TokenLogin.String()).Inc()
	return &nt, nil
}

func zapUser(n domain.UserName) zap.Field { return zap.String("user", n.Name()) }

func zapAdmin(n domain.UserName) zap.Field { return zap.String("admin", n.Name()) }

