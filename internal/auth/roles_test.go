package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate-io/authgate/internal/domain"
)

func TestUpdateRolesGrantChain(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	rootTok := rootToken(t, a)

	target := makeLocalUser(t, a, fs, "climber", "somepassword", domain.RoleAdmin)
	targetTok := loginTokenFor(t, a, fs, target)

	// Root may only grant the create-administrator role.
	err := a.UpdateRoles(ctx, rootTok, target, []domain.Role{domain.RoleAdmin}, nil)
	assertKind(t, err, domain.ErrUnauthorized,
		"Not authorized to grant role(s): administrator")

	require.NoError(t, a.UpdateRoles(ctx, rootTok, target,
		[]domain.Role{domain.RoleCreateAdmin}, nil))
	u, err := fs.GetUser(ctx, target)
	require.NoError(t, err)
	assert.Contains(t, u.Roles, domain.RoleCreateAdmin)

	// An administrator grants the token-creation roles.
	other := makeLocalUser(t, a, fs, "tokenmaker", "somepassword")
	require.NoError(t, a.UpdateRoles(ctx, targetTok, other,
		[]domain.Role{domain.RoleDevToken, domain.RoleServToken}, nil))
	u, err = fs.GetUser(ctx, other)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]domain.Role{domain.RoleDevToken, domain.RoleServToken}, u.Roles)

	// And may remove them again.
	require.NoError(t, a.UpdateRoles(ctx, targetTok, other,
		nil, []domain.Role{domain.RoleServToken}))
	u, err = fs.GetUser(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleDevToken}, u.Roles)
}

func TestUpdateRolesValidation(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	rootTok := rootToken(t, a)
	target := makeLocalUser(t, a, fs, "someuser", "somepassword")

	err := a.UpdateRoles(ctx, rootTok, domain.Root(),
		[]domain.Role{domain.RoleCreateAdmin}, nil)
	assertKind(t, err, domain.ErrUnauthorized, "Cannot change ROOT roles")

	err = a.UpdateRoles(ctx, rootTok, target,
		[]domain.Role{domain.RoleCreateAdmin}, []domain.Role{domain.RoleCreateAdmin})
	assertKind(t, err, domain.ErrIllegalParameter,
		"One or more roles is to be both removed and added: create administrator")

	err = a.UpdateRoles(ctx, rootTok, domain.UserName{},
		[]domain.Role{domain.RoleCreateAdmin}, nil)
	assertKind(t, err, domain.ErrMissingParameter, "")

	// An empty update is a no-op and needs no valid token.
	require.NoError(t, a.UpdateRoles(ctx, incoming(t, "notatoken"), target, nil, nil))
}

func TestUpdateRolesRemoveAuthorization(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	admin := makeLocalUser(t, a, fs, "adminuser", "somepassword", domain.RoleAdmin)
	adminTok := loginTokenFor(t, a, fs, admin)
	other := makeLocalUser(t, a, fs, "otheradmin", "somepassword", domain.RoleAdmin)

	// Stripping a role the caller could not grant is only allowed on the
	// caller's own account.
	err := a.UpdateRoles(ctx, adminTok, other, nil, []domain.Role{domain.RoleAdmin})
	assertKind(t, err, domain.ErrUnauthorized,
		"Not authorized to remove role(s): administrator")

	require.NoError(t, a.UpdateRoles(ctx, adminTok, admin, nil,
		[]domain.Role{domain.RoleAdmin}))
	u, err := fs.GetUser(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, u.Roles)
}

func TestRemoveOwnRoles(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	name := makeLocalUser(t, a, fs, "someuser", "somepassword",
		domain.RoleAdmin, domain.RoleDevToken)
	tok := loginTokenFor(t, a, fs, name)

	require.NoError(t, a.RemoveRoles(ctx, tok, []domain.Role{domain.RoleDevToken}))
	u, err := fs.GetUser(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleAdmin}, u.Roles)

	err = a.RemoveRoles(ctx, tok, []domain.Role{domain.RoleRoot})
	assertKind(t, err, domain.ErrUnauthorized, "Cannot change ROOT roles")
}

func TestCustomRoles(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStorage()
	a := newTestEngine(t, fs)
	admin := makeLocalUser(t, a, fs, "adminuser", "somepassword", domain.RoleAdmin)
	adminTok := loginTokenFor(t, a, fs, admin)
	user := makeLocalUser(t, a, fs, "someuser", "somepassword")
	userTok := loginTokenFor(t, a, fs, user)

	role, err := domain.NewCustomRole("curator", "May curate the archive")
	require.NoError(t, err)

	err = a.SetCustomRole(ctx, userTok, role)
	assertKind(t, err, domain.ErrUnauthorized, "")
	require.NoError(t, a.SetCustomRole(ctx, adminTok, role))

	role2, err := domain.NewCustomRole("reviewer", "May review submissions")
	require.NoError(t, err)
	require.NoError(t, a.SetCustomRole(ctx, adminTok, role2))

	// Any valid token may list custom roles unless admin is forced.
	roles, err := a.GetCustomRoles(ctx, userTok, false)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "curator", roles[0].ID)

	_, err = a.GetCustomRoles(ctx, userTok, true)
	assertKind(t, err, domain.ErrUnauthorized, "")

	require.NoError(t, a.UpdateCustomRoles(ctx, adminTok, user,
		[]string{"curator", "reviewer"}, nil))
	u, err := fs.GetUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"curator", "reviewer"}, u.CustomRoles)

	err = a.UpdateCustomRoles(ctx, adminTok, user, []string{"nosuchrole"}, nil)
	assertKind(t, err, domain.ErrNoSuchRole, "No such role: nosuchrole")

	err = a.UpdateCustomRoles(ctx, adminTok, user, []string{"curator"}, []string{"curator"})
	assertKind(t, err, domain.ErrIllegalParameter,
		"One or more roles is to be both removed and added: curator")

	// Deleting a role strips it from every user.
	require.NoError(t, a.DeleteCustomRole(ctx, adminTok, "curator"))
	u, err = fs.GetUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"reviewer"}, u.CustomRoles)

	err = a.DeleteCustomRole(ctx, adminTok, "curator")
	assertKind(t, err, domain.ErrNoSuchRole, "No such role: curator")

	err = a.DeleteCustomRole(ctx, adminTok, "  ")
	assertKind(t, err, domain.ErrMissingParameter, "")
}
