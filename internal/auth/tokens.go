package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/domain"
)

// GetToken resolves a bearer token to its stored record.
func (a *Authentication) GetToken(ctx context.Context, token domain.IncomingToken) (*domain.HashedToken, error) {
	return a.getToken(ctx, token)
}

// GetTokens returns the caller's current token and all their other stored
// tokens.
func (a *Authentication) GetTokens(ctx context.Context, token domain.IncomingToken) (*domain.TokenSet, error) {
	ht, err := a.getToken(ctx, token)
	if err != nil {
		return nil, err
	}
	tokens, err := a.storage.GetTokens(ctx, ht.UserName)
	if err != nil {
		return nil, err
	}
	set := &domain.TokenSet{Current: ht}
	for _, t := range tokens {
		if t.ID != ht.ID {
			set.Tokens = append(set.Tokens, t)
		}
	}
	return set, nil
}

// GetUserTokens returns all of the named user's tokens. The caller must be
// an administrator.
func (a *Authentication) GetUserTokens(ctx context.Context, adminToken domain.IncomingToken,
	userName domain.UserName) ([]*domain.HashedToken, error) {
	if userName.IsZero() {
		return nil, domain.NewError(domain.ErrMissingParameter, "user name")
	}
	if _, err := a.getUser(ctx, adminToken, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return a.storage.GetTokens(ctx, userName)
}

// CreateToken issues a named extended-lifetime token for the caller. Server
// tokens require the server-token role, developer tokens the developer-token
// role. Only a login token may be used to create one.
func (a *Authentication) CreateToken(ctx context.Context, token domain.IncomingToken,
	tokenName string, serverToken bool) (*domain.NewToken, error) {
	tokenName = strings.TrimSpace(tokenName)
	if tokenName == "" {
		return nil, domain.NewError(domain.ErrMissingParameter, "token name")
	}
	if len(tokenName) > domain.MaxTokenNameLength {
		return nil, domain.Errorf(domain.ErrIllegalParameter,
			"token name exceeds maximum length of %d", domain.MaxTokenNameLength)
	}
	ht, err := a.getToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if ht.Type != domain.TokenLogin {
		return nil, domain.NewError(domain.ErrUnauthorized,
			"Only login tokens may be used to create a token")
	}
	u, err := a.getUserFromToken(ctx, ht)
	if err != nil {
		return nil, err
	}
	reqRole := domain.RoleDevToken
	lifetime := domain.LifetimeDev
	if serverToken {
		reqRole = domain.RoleServToken
		lifetime = domain.LifetimeServ
	}
	if !reqRole.IsSatisfiedBy(u.Roles) {
		return nil, domain.Errorf(domain.ErrUnauthorized,
			"User %s is not authorized to create this token type.", u.UserName.Name())
	}
	cfg, err := a.cfg.appConfig(ctx)
	if err != nil {
		return nil, err
	}
	plain, err := a.randGen.Token()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "Failed to generate a token", err)
	}
	nt := domain.NewExtendedToken(tokenName, plain, u.UserName, cfg.TokenLifetime(lifetime))
	if err := a.storage.StoreToken(ctx, &nt.HashedToken); err != nil {
		return nil, err
	}
	a.metrics.TokensIssued.WithLabelValues(domain.TokenExtended.String()).Inc()
	a.log.Info("issued extended token",
		zapUser(u.UserName), zap.Bool("server", serverToken))
	return &nt, nil
}

// RevokeToken revokes one of the caller's own tokens by id.
func (a *Authentication) RevokeToken(ctx context.Context, token domain.IncomingToken,
	tokenID uuid.UUID) error {
	ht, err := a.getToken(ctx, token)
	if err != nil {
		return err
	}
	return a.storage.DeleteToken(ctx, ht.UserName, tokenID)
}

// RevokeUserToken revokes one of the named user's tokens. The caller must be
// an administrator.
func (a *Authentication) RevokeUserToken(ctx context.Context, adminToken domain.IncomingToken,
	userName domain.UserName, tokenID uuid.UUID) error {
	if userName.IsZero() {
		return domain.NewError(domain.ErrMissingParameter, "user name")
	}
	if _, err := a.getUser(ctx, adminToken, domain.RoleAdmin); err != nil {
		return err
	}
	return a.storage.DeleteToken(ctx, userName, tokenID)
}

// RevokeCurrentToken revokes the presented token itself, returning its
// record. A token that is already invalid returns nil without error, since
// the desired end state holds.
func (a *Authentication) RevokeCurrentToken(ctx context.Context, token domain.IncomingToken) (*domain.HashedToken, error) {
	ht, err := a.getToken(ctx, token)
	if err != nil {
		if domain.KindOf(err, domain.ErrInvalidToken) {
			return nil, nil
		}
		return nil, err
	}
	if err := a.storage.DeleteToken(ctx, ht.UserName, ht.ID); err != nil {
		if domain.KindOf(err, domain.ErrNoSuchToken) {
			return nil, nil
		}
		return nil, err
	}
	return ht, nil
}

// RevokeTokens revokes all of the caller's tokens, including the presented
// one.
func (a *Authentication) RevokeTokens(ctx context.Context, token domain.IncomingToken) error {
	ht, err := a.getToken(ctx, token)
	if err != nil {
		return err
	}
	return a.storage.DeleteTokens(ctx, ht.UserName)
}

// RevokeAllUserTokens revokes all of the named user's tokens. The caller
// must be an administrator.
func (a *Authentication) RevokeAllUserTokens(ctx context.Context, adminToken domain.IncomingToken,
	userName domain.UserName) error {
	if userName.IsZero() {
		return domain.NewError(domain.ErrMissingParameter, "user name")
	}
	admin, err := a.getUser(ctx, adminToken, domain.RoleAdmin)
	if err != nil {
		return err
	}
	a.log.Info("revoked all tokens for user", zapUser(userName), zapAdmin(admin.UserName))
	return a.storage.DeleteTokens(ctx, userName)
}

// RevokeAllTokens revokes every token in the system, the caller's included.
// The caller must be an administrator.
func (a *Authentication) RevokeAllTokens(ctx context.Context, adminToken domain.IncomingToken) error {
	admin, err := a.getUser(ctx, adminToken, domain.RoleAdmin)
	if err != nil {
		return err
	}
	a.log.Warn("revoked every token in the system", zapAdmin(admin.UserName))
	return a.storage.DeleteAllTokens(ctx)
}

// GetBareToken returns a fresh unassociated token string, for outer layers
// that need opaque random values (e.g. OAuth2 state or environment cookies).
func (a *Authentication) GetBareToken() (string, error) {
	t, err := a.randGen.Token()
	if err != nil {
		return "", domain.WrapError(domain.ErrInternal, "Failed to generate a token", err)
	}
	return t, nil
}

// GetSuggestedTokenCacheTime returns the time for which external services
// are advised to cache token validation results.
func (a *Authentication) GetSuggestedTokenCacheTime(ctx context.Context) (time.Duration, error) {
	cfg, err := a.cfg.appConfig(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.TokenLifetime(domain.LifetimeExtCache), nil
}
