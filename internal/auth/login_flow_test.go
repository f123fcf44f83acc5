package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate-io/authgate/internal/domain"
)

const testProvider = "FakeProv"

func newLoginEngine(t *testing.T, fs *fakeStorage,
	ids ...domain.RemoteIdentity) (*Authentication, *fakeProvider) {
	t.Helper()
	p := &fakeProvider{name: testProvider, identities: ids}
	a := newTestEngine(t, fs, p)
	enableProvider(t, a, fs, testProvider)
	return a, p
}

func TestGetIdentityProviders(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs,
		&fakeProvider{name: "ProvA"}, &fakeProvider{name: "ProvB"})

	// Providers start disabled.
	names, err := a.GetIdentityProviders(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	enableProvider(t, a, fs, "ProvB")
	names, err = a.GetIdentityProviders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ProvB"}, names)
}

func TestGetIdentityProviderURLDisabled(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs, &fakeProvider{name: testProvider})

	_, err := a.GetIdentityProviderURL(ctx, testProvider, "somestate", false)
	assertKind(t, err, domain.ErrNoSuchProvider, "No such identity provider: FakeProv")

	_, err = a.GetIdentityProviderURL(ctx, "Unknown", "somestate", false)
	assertKind(t, err, domain.ErrNoSuchProvider, "No such identity provider: Unknown")
}

func TestGetIdentityProviderURL(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a, _ := newLoginEngine(t, fs)

	u, err := a.GetIdentityProviderURL(ctx, testProvider, "somestate", false)
	require.NoError(t, err)
	assert.Contains(t, u.String(), "state=somestate")
	assert.Contains(t, u.String(), "link=no")

	u, err = a.GetIdentityProviderURL(ctx, testProvider, "somestate", true)
	require.NoError(t, err)
	assert.Contains(t, u.String(), "link=yes")

	img, err := a.GetIdentityProviderImage(ctx, testProvider)
	require.NoError(t, err)
	assert.Equal(t, "/images/FakeProv.png", img.String())
}

func TestProviderLoginMissingAuthcode(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a, _ := newLoginEngine(t, fs, remoteIdentity(t, testProvider, "rid1", "u1"))

	_, err := a.ProviderLogin(ctx, testProvider, "   ")
	assertKind(t, err, domain.ErrMissingParameter, "")
}

func TestProviderLoginImmediate(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	ri := remoteIdentity(t, testProvider, "rid1", "u1")
	a, p := newLoginEngine(t, fs, ri)
	enableLogin(t, a, fs)
	makeStandardUser(t, fs, "existing", ri.WithID())

	res, err := a.ProviderLogin(ctx, testProvider, "someauthcode")
	require.NoError(t, err)
	require.NotNil(t, res.Token)
	assert.Nil(t, res.TempToken)
	assert.False(t, p.lastLink)

	u, err := a.GetUser(ctx, incoming(t, res.Token.Token))
	require.NoError(t, err)
	assert.Equal(t, "existing", u.UserName.Name())
	assert.NotNil(t, u.LastLogin)
}

func TestProviderLoginDeferredWhenUnlinked(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	ri := remoteIdentity(t, testProvider, "rid1", "u1")
	a, _ := newLoginEngine(t, fs, ri)
	enableLogin(t, a, fs)

	res, err := a.ProviderLogin(ctx, testProvider, "someauthcode")
	require.NoError(t, err)
	assert.Nil(t, res.Token)
	require.NotNil(t, res.TempToken)

	ls, err := a.GetLoginState(ctx, incoming(t, res.TempToken.Token))
	require.NoError(t, err)
	assert.Equal(t, testProvider, ls.Provider)
	assert.True(t, ls.LoginAllowed)
	assert.Empty(t, ls.Users)
	require.Len(t, ls.UnlinkedIDs, 1)
	assert.Equal(t, ri.RemoteID, ls.UnlinkedIDs[0].RemoteID)
}

func TestProviderLoginDeferredWhenLoginDisabled(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	ri := remoteIdentity(t, testProvider, "rid1", "u1")
	a, _ := newLoginEngine(t, fs, ri)
	makeStandardUser(t, fs, "existing", ri.WithID())

	// Login is globally off and the matched account is not an admin, so no
	// token may be issued without interaction.
	res, err := a.ProviderLogin(ctx, testProvider, "someauthcode")
	require.NoError(t, err)
	assert.Nil(t, res.Token)
	require.NotNil(t, res.TempToken)
}

func TestProviderLoginDeferredWhenAccountDisabled(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	ri := remoteIdentity(t, testProvider, "rid1", "u1")
	a, _ := newLoginEngine(t, fs, ri)
	enableLogin(t, a, fs)
	name := makeStandardUser(t, fs, "existing", ri.WithID())
	require.NoError(t, fs.DisableAccount(ctx, name, name, "testing"))

	// A disabled account never logs in without interaction.
	res, err := a.ProviderLogin(ctx, testProvider, "someauthcode")
	require.NoError(t, err)
	assert.Nil(t, res.Token)
	require.NotNil(t, res.TempToken)
}

func TestCompleteLogin(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	ri := remoteIdentity(t, testProvider, "rid1", "u1")
	ri2 := remoteIdentity(t, testProvider, "rid2", "u2")
	a, _ := newLoginEngine(t, fs, ri, ri2)
	enableLogin(t, a, fs)
	makeStandardUser(t, fs, "existing", ri.WithID())

	res, err := a.ProviderLogin(ctx, testProvider, "someauthcode")
	require.NoError(t, err)
	require.NotNil(t, res.TempToken)
	tempTok := incoming(t, res.TempToken.Token)

	ls, err := a.GetLoginState(ctx, tempTok)
	require.NoError(t, err)
	require.Len(t, ls.Users[userName(t, "existing")], 1)
	linkedID := ls.Users[userName(t, "existing")][0].ID

	_, err = a.CompleteLogin(ctx, tempTok, uuid.New())
	assertKind(t, err, domain.ErrUnauthorized, "")

	require.Len(t, ls.UnlinkedIDs, 1)
	_, err = a.CompleteLogin(ctx, tempTok, ls.UnlinkedIDs[0].ID)
	assertKind(t, err, domain.ErrAuthenticationFailed,
		"There is no account linked to the provided identity ID")

	token, err := a.CompleteLogin(ctx, tempTok, linkedID)
	require.NoError(t, err)
	u, err := a.GetUser(ctx, incoming(t, token.Token))
	require.NoError(t, err)
	assert.Equal(t, "existing", u.UserName.Name())
}

func TestGetLoginStateInvalidToken(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a, _ := newLoginEngine(t, fs)

	_, err := a.GetLoginState(ctx, incoming(t, "notatoken"))
	assertKind(t, err, domain.ErrInvalidToken, "Invalid temporary token")

	_, err = a.GetLoginState(ctx, domain.IncomingToken{})
	assertKind(t, err, domain.ErrNoTokenProvided, "No user token provided")
}

func TestCreateUserFromLoginState(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	ri := remoteIdentity(t, testProvider, "rid1", "u1")
	a, _ := newLoginEngine(t, fs, ri)
	enableLogin(t, a, fs)

	res, err := a.ProviderLogin(ctx, testProvider, "someauthcode")
	require.NoError(t, err)
	require.NotNil(t, res.TempToken)
	tempTok := incoming(t, res.TempToken.Token)

	ls, err := a.GetLoginState(ctx, tempTok)
	require.NoError(t, err)
	require.Len(t, ls.UnlinkedIDs, 1)
	id := ls.UnlinkedIDs[0].ID

	_, err = a.CreateUser(ctx, tempTok, id, domain.Root(),
		displayName(t, "Rooty"), domain.UnknownEmail)
	assertKind(t, err, domain.ErrUnauthorized, "Cannot create ROOT user")

	_, err = a.CreateUser(ctx, tempTok, uuid.New(), userName(t, "fresh"),
		displayName(t, "Fresh"), domain.UnknownEmail)
	assertKind(t, err, domain.ErrUnauthorized, "")

	token, err := a.CreateUser(ctx, tempTok, id, userName(t, "fresh"),
		displayName(t, "Fresh"), domain.UnknownEmail)
	require.NoError(t, err)

	u, err := a.GetUser(ctx, incoming(t, token.Token))
	require.NoError(t, err)
	assert.Equal(t, "fresh", u.UserName.Name())
	require.Len(t, u.Identities, 1)
	assert.Equal(t, ri.RemoteID, u.Identities[0].RemoteID)
}

func TestCreateUserWhenCreationDisabled(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	ri := remoteIdentity(t, testProvider, "rid1", "u1")
	a, _ := newLoginEngine(t, fs, ri)

	res, err := a.ProviderLogin(ctx, testProvider, "someauthcode")
	require.NoError(t, err)
	require.NotNil(t, res.TempToken)

	_, err = a.CreateUser(ctx, incoming(t, res.TempToken.Token), uuid.New(),
		userName(t, "fresh"), displayName(t, "Fresh"), domain.UnknownEmail)
	assertKind(t, err, domain.ErrUnauthorized, "Account creation is disabled")
}

func TestGetAvailableUserName(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)

	name, ok, err := a.GetAvailableUserName(ctx, "Foo Bar")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "foobar", name.Name())

	// The bare name counts as suffix 1, so the next free name is 2.
	makeLocalUser(t, a, fs, "foobar", "somepassword")
	name, ok, err = a.GetAvailableUserName(ctx, "Foo Bar")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "foobar2", name.Name())

	makeLocalUser(t, a, fs, "foobar1", "somepassword")
	makeLocalUser(t, a, fs, "foobar5", "somepassword")
	name, ok, err = a.GetAvailableUserName(ctx, "foobar")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "foobar6", name.Name())

	// A suggestion with a free numeric suffix is kept as is.
	name, ok, err = a.GetAvailableUserName(ctx, "foobar3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "foobar3", name.Name())

	// Nothing usable remains after sanitizing; fall back to a numbered
	// generic name.
	name, ok, err = a.GetAvailableUserName(ctx, "&&&")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user1", name.Name())
}

func TestImportUser(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)

	ri := remoteIdentity(t, testProvider, "rid1", "u1")
	require.NoError(t, a.ImportUser(ctx, userName(t, "imported"), ri))

	u, err := fs.GetUser(ctx, userName(t, "imported"))
	require.NoError(t, err)
	assert.Equal(t, "u1 Fullname", u.DisplayName.Name())
	assert.Equal(t, "u1@example.com", u.Email.Address())
	require.Len(t, u.Identities, 1)

	// A second import of the same identity fails.
	err = a.ImportUser(ctx, userName(t, "imported2"), ri)
	assertKind(t, err, domain.ErrIdentityLinked, "")

	err = a.ImportUser(ctx, domain.Root(), remoteIdentity(t, testProvider, "rid2", "u2"))
	assertKind(t, err, domain.ErrUnauthorized, "Cannot create ROOT user")
}

func TestImportUserFallbackDetails(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)

	ri, err := domain.NewRemoteIdentity(
		domain.RemoteIdentityID{Provider: testProvider, ID: "rid1"},
		domain.RemoteIdentityDetails{Username: "u1"})
	require.NoError(t, err)
	require.NoError(t, a.ImportUser(ctx, userName(t, "imported"), ri))

	u, err := fs.GetUser(ctx, userName(t, "imported"))
	require.NoError(t, err)
	assert.Equal(t, domain.UnknownDisplayName, u.DisplayName)
	assert.True(t, u.Email.IsUnknown())
}
