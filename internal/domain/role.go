package domain

import (
	"regexp"
	"sort"
	"strings"
)

// Role is one of the built-in authorization roles. Built-in roles gate what
// a user may do with the authentication service itself; the grant hierarchy
// is fixed: root grants create-administrator, create-administrator grants
// administrator, and administrator grants the token-creation roles.
type Role int

const (
	// RoleRoot is held only by the root account. Its sole purpose is to
	// grant RoleCreateAdmin.
	RoleRoot Role = iota + 1

	// RoleCreateAdmin exists only to grant RoleAdmin.
	RoleCreateAdmin

	// RoleAdmin is the general administration role.
	RoleAdmin

	// RoleDevToken allows creating extended-lifetime developer tokens.
	RoleDevToken

	// RoleServToken allows creating extended-lifetime server tokens.
	RoleServToken
)

var roleIDs = map[Role]string{
	RoleRoot:        "Root",
	RoleCreateAdmin: "CreateAdmin",
	RoleAdmin:       "Admin",
	RoleDevToken:    "DevToken",
	RoleServToken:   "ServToken",
}

var roleDescriptions = map[Role]string{
	RoleRoot:        "root",
	RoleCreateAdmin: "create administrator",
	RoleAdmin:       "administrator",
	RoleDevToken:    "create developer tokens",
	RoleServToken:   "create server tokens",
}

// ID returns the stable identifier of the role.
func (r Role) ID() string { return roleIDs[r] }

// Description returns the human-readable description of the role, used in
// authorization error messages.
func (r Role) Description() string { return roleDescriptions[r] }

func (r Role) String() string { return r.ID() }

// RoleFromID returns the role with the given stable identifier.
func RoleFromID(id string) (Role, error) {
	for r, rid := range roleIDs {
		if rid == id {
			return r, nil
		}
	}
	return 0, Errorf(ErrNoSuchRole, "No such role: %s", id)
}

// Included returns the set of roles this role implicitly grants to its
// holder, always including itself. Only the administrator role includes
// other roles.
func (r Role) Included() []Role {
	if r == RoleAdmin {
		return []Role{RoleAdmin, RoleDevToken, RoleServToken}
	}
	return []Role{r}
}

// Grantable returns the set of roles a holder of this role may grant to or
// remove from other users.
func (r Role) Grantable() []Role {
	switch r {
	case RoleRoot:
		return []Role{RoleCreateAdmin}
	case RoleCreateAdmin:
		return []Role{RoleAdmin}
	case RoleAdmin:
		return []Role{RoleDevToken, RoleServToken}
	}
	return nil
}

// IsSatisfiedBy reports whether any of the possessed roles includes r.
func (r Role) IsSatisfiedBy(possessed []Role) bool {
	for _, p := range possessed {
		for _, inc := range p.Included() {
			if inc == r {
				return true
			}
		}
	}
	return false
}

// IsAdmin reports whether the role set carries administrative privilege:
// root, create-administrator, or administrator.
func IsAdmin(roles []Role) bool {
	for _, r := range roles {
		if r == RoleRoot || r == RoleCreateAdmin || r == RoleAdmin {
			return true
		}
	}
	return false
}

// IncludedRoles returns the union of the included sets of all possessed
// roles.
func IncludedRoles(possessed []Role) map[Role]bool {
	has := map[Role]bool{}
	for _, r := range possessed {
		for _, inc := range r.Included() {
			has[inc] = true
		}
	}
	return has
}

// GrantableRoles returns the union of the grantable sets of all possessed
// roles.
func GrantableRoles(possessed []Role) map[Role]bool {
	g := map[Role]bool{}
	for _, r := range possessed {
		for _, gr := range r.Grantable() {
			g[gr] = true
		}
	}
	return g
}

// RoleDescriptions returns the sorted descriptions of a role set, for error
// messages.
func RoleDescriptions(roles []Role) []string {
	descs := make([]string, 0, len(roles))
	for _, r := range roles {
		descs = append(descs, r.Description())
	}
	sort.Strings(descs)
	return descs
}

// MaxCustomRoleIDLength is the maximum length of a custom role id.
const MaxCustomRoleIDLength = 100

var customRoleIDPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// CustomRole is an administrator-defined tag assigned to users. Custom roles
// are independent of the built-in roles and confer no privilege within the
// authentication service.
type CustomRole struct {
	ID          string
	Description string
}

// NewCustomRole validates and returns a CustomRole.
func NewCustomRole(id, description string) (CustomRole, error) {
	if strings.TrimSpace(id) == "" {
		return CustomRole{}, NewError(ErrMissingParameter, "custom role id")
	}
	if len(id) > MaxCustomRoleIDLength {
		return CustomRole{}, Errorf(ErrIllegalParameter,
			"custom role id exceeds maximum length of %d", MaxCustomRoleIDLength)
	}
	if !customRoleIDPattern.MatchString(id) {
		return CustomRole{}, Errorf(ErrIllegalParameter,
			"Illegal custom role id: %s", id)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return CustomRole{}, NewError(ErrMissingParameter, "custom role description")
	}
	return CustomRole{ID: id, Description: description}, nil
}
