package gormstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/authgate-io/authgate/internal/domain"
)

// Base contains the common fields shared by all models. ID uses UUID v7
// (time-ordered) for efficient B-tree indexing. CreatedAt and UpdatedAt are
// managed automatically by GORM.
type Base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// User is one account, local or identity-linked. PasswordHash and Salt are
// set only for local accounts. Roles holds the built-in role ids as a JSON
// array; custom roles live in the user_custom_roles join table.
type User struct {
	Base
	UserName       string `gorm:"uniqueIndex;not null"`
	DisplayName    string `gorm:"not null"`
	Email          string `gorm:"not null;default:''"` // empty = unknown
	Local          bool   `gorm:"not null;default:false"`
	// PasswordHash and Salt are base64 encoded so the columns stay plain
	// text across SQLite and PostgreSQL.
	PasswordHash string `gorm:"default:''"`
	Salt         string `gorm:"default:''"`
	ForceReset   bool   `gorm:"not null;default:false"`
	LastReset      *time.Time
	Roles          string `gorm:"type:text;not null;default:'[]'"` // JSON array of role ids
	LastLoginAt    *time.Time
	Disabled       bool   `gorm:"not null;default:false"`
	DisabledReason string `gorm:"type:text;default:''"`
	DisabledBy     string `gorm:"default:''"`
}

// Identity is one remote identity linked to a user. The row ID is the
// identity's locally assigned id from the domain layer, not a generated
// one. The (provider, provider_id) pair is unique across all users, which
// is what makes an identity linkable to at most one account.
type Identity struct {
	Base
	UserID     uuid.UUID `gorm:"type:text;not null;index"`
	Provider   string    `gorm:"not null;uniqueIndex:idx_identities_remote"`
	ProviderID string    `gorm:"not null;uniqueIndex:idx_identities_remote"`
	Username   string    `gorm:"default:''"`
	Fullname   string    `gorm:"default:''"`
	Email      string    `gorm:"default:''"`
}

// Token stores a hashed bearer token. The raw token is never stored, only
// its SHA-256 hash.
type Token struct {
	Base
	UserName  string `gorm:"not null;index"`
	Type      string `gorm:"not null"`
	Name      string `gorm:"default:''"`
	TokenHash string `gorm:"not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TempState stores the identity set of a deferred login or link flow under
// the temporary token's hash. Identities holds a JSON array.
type TempState struct {
	Base
	TokenHash  string    `gorm:"not null;uniqueIndex"`
	Identities string    `gorm:"type:text;not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// CustomRole is an administrator-defined role.
type CustomRole struct {
	Base
	RoleID      string `gorm:"not null;uniqueIndex"`
	Description string `gorm:"type:text;not null"`
}

// UserCustomRole is the join table between users and custom roles. RoleID
// references CustomRole.RoleID rather than the row id so role deletion can
// cascade with a single delete.
type UserCustomRole struct {
	Base
	UserID uuid.UUID `gorm:"type:text;not null;index"`
	RoleID string    `gorm:"not null;index"`
}

// Setting is one key-value configuration entry. Keys are namespaced by
// convention ("login.allowed", "provider.Globus.enabled", "ext.ui-url").
type Setting struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// identityJSON is the serialized form of an identity inside temp state.
type identityJSON struct {
	ID         string `json:"id"`
	Provider   string `json:"provider"`
	ProviderID string `json:"prov_id"`
	Username   string `json:"username,omitempty"`
	Fullname   string `json:"fullname,omitempty"`
	Email      string `json:"email,omitempty"`
}

func marshalIdentities(ids []domain.RemoteIdentityWithLocalID) (string, error) {
	out := make([]identityJSON, 0, len(ids))
	for _, ri := range ids {
		out = append(out, identityJSON{
			ID:         ri.ID.String(),
			Provider:   ri.RemoteID.Provider,
			ProviderID: ri.RemoteID.ID,
			Username:   ri.Details.Username,
			Fullname:   ri.Details.Fullname,
			Email:      ri.Details.Email,
		})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalIdentities(raw string) ([]domain.RemoteIdentityWithLocalID, error) {
	var in []identityJSON
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, err
	}
	out := make([]domain.RemoteIdentityWithLocalID, 0, len(in))
	for _, ri := range in {
		id, err := uuid.Parse(ri.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.RemoteIdentityWithLocalID{
			ID: id,
			RemoteIdentity: domain.RemoteIdentity{
				RemoteID: domain.RemoteIdentityID{Provider: ri.Provider, ID: ri.ProviderID},
				Details: domain.RemoteIdentityDetails{
					Username: ri.Username,
					Fullname: ri.Fullname,
					Email:    ri.Email,
				},
			},
		})
	}
	return out, nil
}

func marshalRoles(roles []domain.Role) (string, error) {
	ids := make([]string, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID())
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalRoles(raw string) ([]domain.Role, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	var roles []domain.Role
	for _, id := range ids {
		r, err := domain.RoleFromID(id)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}
