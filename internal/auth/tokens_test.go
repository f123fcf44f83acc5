package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate-io/authgate/internal/domain"
)

func TestGetTokenInvalid(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)

	_, err := a.GetToken(ctx, domain.IncomingToken{})
	assertKind(t, err, domain.ErrNoTokenProvided, "No user token provided")

	_, err = a.GetToken(ctx, incoming(t, "notatoken"))
	assertKind(t, err, domain.ErrInvalidToken, "Invalid token")
}

func TestGetTokenExpired(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	name := makeLocalUser(t, a, fs, "someuser", "somepassword")

	nt := domain.NewLoginToken("expiredtoken", name, -time.Second)
	require.NoError(t, fs.StoreToken(ctx, &nt.HashedToken))

	_, err := a.GetToken(ctx, incoming(t, "expiredtoken"))
	assertKind(t, err, domain.ErrInvalidToken, "Invalid token")
}

func TestGetTokensExcludesCurrent(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	name := makeLocalUser(t, a, fs, "someuser", "somepassword")
	tok := loginTokenFor(t, a, fs, name)
	other := loginTokenFor(t, a, fs, name)

	set, err := a.GetTokens(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, tok.HashedToken(), set.Current.TokenHash)
	require.Len(t, set.Tokens, 1)
	assert.Equal(t, other.HashedToken(), set.Tokens[0].TokenHash)
}

func TestCreateTokenValidation(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	name := makeLocalUser(t, a, fs, "someuser", "somepassword", domain.RoleDevToken)
	tok := loginTokenFor(t, a, fs, name)

	_, err := a.CreateToken(ctx, tok, "   ", false)
	assertKind(t, err, domain.ErrMissingParameter, "")

	_, err = a.CreateToken(ctx, tok, strings.Repeat("x", 101), false)
	assertKind(t, err, domain.ErrIllegalParameter, "token name exceeds maximum length of 100")
}

func TestCreateTokenRoles(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)

	plain := makeLocalUser(t, a, fs, "plainuser", "somepassword")
	plainTok := loginTokenFor(t, a, fs, plain)
	_, err := a.CreateToken(ctx, plainTok, "ci", false)
	assertKind(t, err, domain.ErrUnauthorized,
		"User plainuser is not authorized to create this token type.")

	dev := makeLocalUser(t, a, fs, "devuser", "somepassword", domain.RoleDevToken)
	devTok := loginTokenFor(t, a, fs, dev)
	nt, err := a.CreateToken(ctx, devTok, "ci", false)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenExtended, nt.Type)
	assert.Equal(t, "ci", nt.Name)

	// The developer-token role does not cover server tokens.
	_, err = a.CreateToken(ctx, devTok, "svc", true)
	assertKind(t, err, domain.ErrUnauthorized,
		"User devuser is not authorized to create this token type.")

	// The administrator role includes both token-creation roles.
	admin := makeLocalUser(t, a, fs, "adminuser", "somepassword", domain.RoleAdmin)
	adminTok := loginTokenFor(t, a, fs, admin)
	_, err = a.CreateToken(ctx, adminTok, "svc", true)
	require.NoError(t, err)
}

func TestCreateTokenRequiresLoginToken(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	name := makeLocalUser(t, a, fs, "devuser", "somepassword", domain.RoleDevToken)
	tok := loginTokenFor(t, a, fs, name)

	nt, err := a.CreateToken(ctx, tok, "ci", false)
	require.NoError(t, err)

	_, err = a.CreateToken(ctx, incoming(t, nt.Token), "another", false)
	assertKind(t, err, domain.ErrUnauthorized,
		"Only login tokens may be used to create a token")
}

func TestRevokeCurrentToken(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	name := makeLocalUser(t, a, fs, "someuser", "somepassword")
	tok := loginTokenFor(t, a, fs, name)

	ht, err := a.RevokeCurrentToken(ctx, tok)
	require.NoError(t, err)
	require.NotNil(t, ht)
	assert.Equal(t, name, ht.UserName)

	// Revoking an already revoked token is a no-op, not an error.
	ht, err = a.RevokeCurrentToken(ctx, tok)
	require.NoError(t, err)
	assert.Nil(t, ht)
}

func TestRevokeToken(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	name := makeLocalUser(t, a, fs, "someuser", "somepassword")
	tok := loginTokenFor(t, a, fs, name)
	other := loginTokenFor(t, a, fs, name)

	otherHT, err := a.GetToken(ctx, other)
	require.NoError(t, err)
	require.NoError(t, a.RevokeToken(ctx, tok, otherHT.ID))

	_, err = a.GetToken(ctx, other)
	assertKind(t, err, domain.ErrInvalidToken, "Invalid token")

	err = a.RevokeToken(ctx, tok, uuid.New())
	assertKind(t, err, domain.ErrNoSuchToken, "")
}

func TestRevokeTokens(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	name := makeLocalUser(t, a, fs, "someuser", "somepassword")
	tok := loginTokenFor(t, a, fs, name)
	other := loginTokenFor(t, a, fs, name)

	require.NoError(t, a.RevokeTokens(ctx, tok))
	for _, it := range []domain.IncomingToken{tok, other} {
		_, err := a.GetToken(ctx, it)
		assertKind(t, err, domain.ErrInvalidToken, "Invalid token")
	}
}

func TestAdminTokenOperations(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	admin := makeLocalUser(t, a, fs, "adminuser", "somepassword", domain.RoleAdmin)
	adminTok := loginTokenFor(t, a, fs, admin)
	user := makeLocalUser(t, a, fs, "someuser", "somepassword")
	userTok := loginTokenFor(t, a, fs, user)

	tokens, err := a.GetUserTokens(ctx, adminTok, user)
	require.NoError(t, err)
	require.Len(t, tokens, 1)

	_, err = a.GetUserTokens(ctx, userTok, admin)
	assertKind(t, err, domain.ErrUnauthorized, "")

	require.NoError(t, a.RevokeUserToken(ctx, adminTok, user, tokens[0].ID))
	_, err = a.GetToken(ctx, userTok)
	assertKind(t, err, domain.ErrInvalidToken, "Invalid token")

	userTok = loginTokenFor(t, a, fs, user)
	require.NoError(t, a.RevokeAllUserTokens(ctx, adminTok, user))
	_, err = a.GetToken(ctx, userTok)
	assertKind(t, err, domain.ErrInvalidToken, "Invalid token")
}

func TestRevokeAllTokens(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	admin := makeLocalUser(t, a, fs, "adminuser", "somepassword", domain.RoleAdmin)
	adminTok := loginTokenFor(t, a, fs, admin)
	user := makeLocalUser(t, a, fs, "someuser", "somepassword")
	userTok := loginTokenFor(t, a, fs, user)

	require.NoError(t, a.RevokeAllTokens(ctx, adminTok))

	// The caller's own token is gone too.
	for _, it := range []domain.IncomingToken{adminTok, userTok} {
		_, err := a.GetToken(ctx, it)
		assertKind(t, err, domain.ErrInvalidToken, "Invalid token")
	}
}

func TestDisabledUserTokensRejectedAndRevoked(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	rootTok := rootToken(t, a)
	user := makeLocalUser(t, a, fs, "someuser", "somepassword")
	userTok := loginTokenFor(t, a, fs, user)

	require.NoError(t, a.DisableAccount(ctx, rootTok, user, true, "testing"))

	_, err := a.GetUser(ctx, userTok)
	assertKind(t, err, domain.ErrInvalidToken, "Invalid token")
}

func TestGetBareToken(t *testing.T) {
	fs := newFakeStorage()
	a := newTestEngine(t, fs)

	t1, err := a.GetBareToken()
	require.NoError(t, err)
	t2, err := a.GetBareToken()
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
	assert.Len(t, t1, 27)
}

func TestGetSuggestedTokenCacheTime(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)

	d, err := a.GetSuggestedTokenCacheTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)
}
