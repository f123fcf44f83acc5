package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleIncluded(t *testing.T) {
	assert.ElementsMatch(t, []Role{RoleAdmin, RoleDevToken, RoleServToken},
		RoleAdmin.Included())
	assert.Equal(t, []Role{RoleRoot}, RoleRoot.Included())
	assert.Equal(t, []Role{RoleCreateAdmin}, RoleCreateAdmin.Included())
	assert.Equal(t, []Role{RoleDevToken}, RoleDevToken.Included())
}

func TestRoleGrantable(t *testing.T) {
	assert.Equal(t, []Role{RoleCreateAdmin}, RoleRoot.Grantable())
	assert.Equal(t, []Role{RoleAdmin}, RoleCreateAdmin.Grantable())
	assert.ElementsMatch(t, []Role{RoleDevToken, RoleServToken}, RoleAdmin.Grantable())
	assert.Empty(t, RoleDevToken.Grantable())
	assert.Empty(t, RoleServToken.Grantable())
}

func TestRoleIsSatisfiedBy(t *testing.T) {
	// Admin includes the token-creation roles but not vice versa.
	assert.True(t, RoleDevToken.IsSatisfiedBy([]Role{RoleAdmin}))
	assert.True(t, RoleServToken.IsSatisfiedBy([]Role{RoleAdmin}))
	assert.False(t, RoleAdmin.IsSatisfiedBy([]Role{RoleDevToken}))
	assert.False(t, RoleAdmin.IsSatisfiedBy([]Role{RoleRoot}))
	assert.True(t, RoleDevToken.IsSatisfiedBy([]Role{RoleServToken, RoleDevToken}))
	assert.False(t, RoleDevToken.IsSatisfiedBy(nil))
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, IsAdmin([]Role{RoleRoot}))
	assert.True(t, IsAdmin([]Role{RoleCreateAdmin}))
	assert.True(t, IsAdmin([]Role{RoleDevToken, RoleAdmin}))
	assert.False(t, IsAdmin([]Role{RoleDevToken, RoleServToken}))
	assert.False(t, IsAdmin(nil))
}

func TestRoleFromID(t *testing.T) {
	for _, r := range []Role{RoleRoot, RoleCreateAdmin, RoleAdmin, RoleDevToken, RoleServToken} {
		got, err := RoleFromID(r.ID())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := RoleFromID("NotARole")
	assert.Error(t, err)
	assert.True(t, KindOf(err, ErrNoSuchRole))
}

func TestRoleDescriptionsSorted(t *testing.T) {
	descs := RoleDescriptions([]Role{RoleServToken, RoleAdmin, RoleDevToken})
	assert.Equal(t, []string{
		"administrator", "create developer tokens", "create server tokens",
	}, descs)
}

func TestNewCustomRole(t *testing.T) {
	cr, err := NewCustomRole("myrole", " does a thing ")
	require.NoError(t, err)
	assert.Equal(t, "myrole", cr.ID)
	assert.Equal(t, "does a thing", cr.Description)

	for _, bad := range []struct{ id, desc string }{
		{"", "desc"},
		{"  ", "desc"},
		{"Bad-ID", "desc"},
		{"myrole", ""},
	} {
		_, err := NewCustomRole(bad.id, bad.desc)
		assert.Error(t, err, "id %q desc %q", bad.id, bad.desc)
	}
}
