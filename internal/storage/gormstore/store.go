package gormstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/authgate-io/authgate/internal/domain"
	"github.com/authgate-io/authgate/internal/storage"
)

// Store implements the storage contract on a *gorm.DB.
type Store struct {
	db *gorm.DB
}

var _ storage.Storage = (*Store)(nil)

// New returns a Store backed by the provided *gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// storageErr wraps a database failure as a storage-kind domain error.
func storageErr(op string, err error) error {
	return domain.WrapError(domain.ErrStorage, fmt.Sprintf("storage: %s failed", op), err)
}

// isDuplicate reports whether err is a unique constraint violation. The
// modernc SQLite driver and lib/pq report these differently, so the check
// falls back to message matching.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE") ||
		strings.Contains(msg, "duplicate key value")
}

func noSuchUser(name domain.UserName) error {
	return domain.Errorf(domain.ErrNoSuchUser, "No such user: %s", name.Name())
}

// toUserName converts a stored name back to the domain type. The root name
// fails normal validation, so it is special-cased.
func toUserName(name string) (domain.UserName, error) {
	if name == domain.Root().Name() {
		return domain.Root(), nil
	}
	return domain.NewUserName(name)
}

// CreateUser implements storage.Storage.
func (s *Store) CreateUser(ctx context.Context, user *domain.AuthUser) error {
	if len(user.Identities) != 1 {
		return domain.NewError(domain.ErrIllegalParameter,
			"A new user must have exactly one linked identity")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing User
		err := tx.First(&existing, "user_name = ?", user.UserName.Name()).Error
		if err == nil {
			return domain.Errorf(domain.ErrUserExists, "User %s already exists", user.UserName.Name())
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return storageErr("create user", err)
		}
		ri := user.Identities[0]
		var linked Identity
		err = tx.First(&linked, "provider = ? AND provider_id = ?",
			ri.RemoteID.Provider, ri.RemoteID.ID).Error
		if err == nil {
			return domain.NewError(domain.ErrIdentityLinked, "Identity already linked")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return storageErr("create user", err)
		}
		m := userToModel(user)
		if err := tx.Create(m).Error; err != nil {
			if isDuplicate(err) {
				return domain.Errorf(domain.ErrUserExists, "User %s already exists", user.UserName.Name())
			}
			return storageErr("create user", err)
		}
		im := identityToModel(ri, m.ID)
		if err := tx.Create(im).Error; err != nil {
			if isDuplicate(err) {
				return domain.NewError(domain.ErrIdentityLinked, "Identity already linked")
			}
			return storageErr("create user", err)
		}
		return nil
	})
	return err
}

// CreateLocalUser implements storage.Storage.
func (s *Store) CreateLocalUser(ctx context.Context, user *domain.LocalUser) error {
	m := userToModel(&user.AuthUser)
	m.Local = true
	m.PasswordHash = base64.StdEncoding.EncodeToString(user.PasswordHash)
	m.Salt = base64.StdEncoding.EncodeToString(user.Salt)
	m.ForceReset = user.ForceReset
	m.LastReset = user.LastReset
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return domain.Errorf(domain.ErrUserExists, "User %s already exists", user.UserName.Name())
		}
		return storageErr("create local user", err)
	}
	return nil
}

// GetUser implements storage.Storage.
func (s *Store) GetUser(ctx context.Context, name domain.UserName) (*domain.AuthUser, error) {
	m, err := s.getUserModel(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	return s.toAuthUser(ctx, s.db, m)
}

// GetLocalUser implements storage.Storage.
func (s *Store) GetLocalUser(ctx context.Context, name domain.UserName) (*domain.LocalUser, error) {
	m, err := s.getUserModel(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if !m.Local {
		return nil, domain.Errorf(domain.ErrNoSuchUser, "%s is not a local user", name.Name())
	}
	au, err := s.toAuthUser(ctx, s.db, m)
	if err != nil {
		return nil, err
	}
	hash, err := base64.StdEncoding.DecodeString(m.PasswordHash)
	if err != nil {
		return nil, storageErr("get local user", err)
	}
	salt, err := base64.StdEncoding.DecodeString(m.Salt)
	if err != nil {
		return nil, storageErr("get local user", err)
	}
	return &domain.LocalUser{
		AuthUser:     *au,
		PasswordHash: hash,
		Salt:         salt,
		ForceReset:   m.ForceReset,
		LastReset:    m.LastReset,
	}, nil
}

// GetUserByIdentity implements storage.Storage. The stored identity details
// are refreshed from the incoming identity when they have drifted, so the
// account always reflects what the provider last reported.
func (s *Store) GetUserByIdentity(ctx context.Context, ri domain.RemoteIdentity) (*domain.AuthUser, bool, error) {
	var im Identity
	err := s.db.WithContext(ctx).
		First(&im, "provider = ? AND provider_id = ?", ri.RemoteID.Provider, ri.RemoteID.ID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, storageErr("get user by identity", err)
	}
	if im.Username != ri.Details.Username || im.Fullname != ri.Details.Fullname ||
		im.Email != ri.Details.Email {
		updates := map[string]any{
			"username": ri.Details.Username,
			"fullname": ri.Details.Fullname,
			"email":    ri.Details.Email,
		}
		if err := s.db.WithContext(ctx).Model(&Identity{}).
			Where("id = ?", im.ID).Updates(updates).Error; err != nil {
			return nil, false, storageErr("get user by identity", err)
		}
	}
	var m User
	if err := s.db.WithContext(ctx).First(&m, "id = ?", im.UserID).Error; err != nil {
		return nil, false, storageErr("get user by identity", err)
	}
	u, err := s.toAuthUser(ctx, s.db, &m)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// UpdateUser implements storage.Storage.
func (s *Store) UpdateUser(ctx context.Context, name domain.UserName, update domain.UserUpdate) error {
	if !update.HasUpdates() {
		return nil
	}
	updates := map[string]any{}
	if update.DisplayName != nil {
		updates["display_name"] = update.DisplayName.Name()
	}
	if update.Email != nil {
		updates["email"] = update.Email.Address()
	}
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("user_name = ?", name.Name()).Updates(updates)
	if result.Error != nil {
		return storageErr("update user", result.Error)
	}
	if result.RowsAffected == 0 {
		return noSuchUser(name)
	}
	return nil
}

// SetLastLogin implements storage.Storage.
func (s *Store) SetLastLogin(ctx context.Context, name domain.UserName, login time.Time) error {
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("user_name = ?", name.Name()).Update("last_login_at", login)
	if result.Error != nil {
		return storageErr("set last login", result.Error)
	}
	if result.RowsAffected == 0 {
		return noSuchUser(name)
	}
	return nil
}

// ChangePassword implements storage.Storage.
func (s *Store) ChangePassword(ctx context.Context, name domain.UserName, hash, salt []byte,
	forceReset bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.getUserModel(ctx, tx, name)
		if err != nil {
			return err
		}
		if !m.Local {
			return domain.Errorf(domain.ErrNoSuchUser, "%s is not a local user", name.Name())
		}
		now := time.Now()
		updates := map[string]any{
			"password_hash": base64.StdEncoding.EncodeToString(hash),
			"salt":          base64.StdEncoding.EncodeToString(salt),
			"force_reset":   forceReset,
			"last_reset":    now,
		}
		if err := tx.Model(&User{}).Where("id = ?", m.ID).Updates(updates).Error; err != nil {
			return storageErr("change password", err)
		}
		return nil
	})
}

// ForcePasswordReset implements storage.Storage.
func (s *Store) ForcePasswordReset(ctx context.Context, name domain.UserName) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.getUserModel(ctx, tx, name)
		if err != nil {
			return err
		}
		if !m.Local {
			return domain.Errorf(domain.ErrNoSuchUser, "%s is not a local user", name.Name())
		}
		if err := tx.Model(&User{}).Where("id = ?", m.ID).
			Update("force_reset", true).Error; err != nil {
			return storageErr("force password reset", err)
		}
		return nil
	})
}

// ForcePasswordResetAll implements storage.Storage.
func (s *Store) ForcePasswordResetAll(ctx context.Context) error {
	err := s.db.WithContext(ctx).Model(&User{}).
		Where("local = ?", true).Update("force_reset", true).Error
	if err != nil {
		return storageErr("force password reset all", err)
	}
	return nil
}

// DisableAccount implements storage.Storage.
func (s *Store) DisableAccount(ctx context.Context, name, admin domain.UserName, reason string) error {
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("user_name = ?", name.Name()).
		Updates(map[string]any{
			"disabled":        true,
			"disabled_reason": reason,
			"disabled_by":     admin.Name(),
		})
	if result.Error != nil {
		return storageErr("disable account", result.Error)
	}
	if result.RowsAffected == 0 {
		return noSuchUser(name)
	}
	return nil
}

// EnableAccount implements storage.Storage.
func (s *Store) EnableAccount(ctx context.Context, name, admin domain.UserName) error {
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("user_name = ?", name.Name()).
		Updates(map[string]any{
			"disabled":        false,
			"disabled_reason": "",
			"disabled_by":     "",
		})
	if result.Error != nil {
		return storageErr("enable account", result.Error)
	}
	if result.RowsAffected == 0 {
		return noSuchUser(name)
	}
	return nil
}

// Link implements storage.Storage. Linking an identity the user already
// holds refreshes its details and succeeds.
func (s *Store) Link(ctx context.Context, name domain.UserName, ri domain.RemoteIdentityWithLocalID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.getUserModel(ctx, tx, name)
		if err != nil {
			return err
		}
		if m.Local {
			return domain.NewError(domain.ErrLinkFailed,
				"Cannot link identities to local accounts")
		}
		var existing Identity
		err = tx.First(&existing, "provider = ? AND provider_id = ?",
			ri.RemoteID.Provider, ri.RemoteID.ID).Error
		if err == nil {
			if existing.UserID != m.ID {
				return domain.NewError(domain.ErrIdentityLinked, "Identity already linked")
			}
			updates := map[string]any{
				"username": ri.Details.Username,
				"fullname": ri.Details.Fullname,
				"email":    ri.Details.Email,
			}
			if err := tx.Model(&Identity{}).Where("id = ?", existing.ID).
				Updates(updates).Error; err != nil {
				return storageErr("link", err)
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return storageErr("link", err)
		}
		im := identityToModel(ri, m.ID)
		if err := tx.Create(im).Error; err != nil {
			if isDuplicate(err) {
				return domain.NewError(domain.ErrIdentityLinked, "Identity already linked")
			}
			return storageErr("link", err)
		}
		return nil
	})
}

// Unlink implements storage.Storage.
func (s *Store) Unlink(ctx context.Context, name domain.UserName, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.getUserModel(ctx, tx, name)
		if err != nil {
			return err
		}
		if m.Local {
			return domain.NewError(domain.ErrUnlinkFailed,
				"Local users don't have remote identities")
		}
		var count int64
		if err := tx.Model(&Identity{}).Where("user_id = ?", m.ID).
			Count(&count).Error; err != nil {
			return storageErr("unlink", err)
		}
		var im Identity
		err = tx.First(&im, "id = ? AND user_id = ?", id, m.ID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.Errorf(domain.ErrUnlinkFailed,
					"The user does not have an identity with ID %s", id)
			}
			return storageErr("unlink", err)
		}
		if count <= 1 {
			return domain.NewError(domain.ErrUnlinkFailed,
				"The user has only one associated identity")
		}
		if err := tx.Delete(&Identity{}, "id = ?", im.ID).Error; err != nil {
			return storageErr("unlink", err)
		}
		return nil
	})
}

// UpdateRoles implements storage.Storage.
func (s *Store) UpdateRoles(ctx context.Context, name domain.UserName, add, remove []domain.Role) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.getUserModel(ctx, tx, name)
		if err != nil {
			return err
		}
		roles, err := unmarshalRoles(m.Roles)
		if err != nil {
			return storageErr("update roles", err)
		}
		set := map[domain.Role]bool{}
		for _, r := range roles {
			set[r] = true
		}
		for _, r := range add {
			set[r] = true
		}
		for _, r := range remove {
			delete(set, r)
		}
		// Stable order keeps the column deterministic.
		var updated []domain.Role
		for _, r := range []domain.Role{domain.RoleRoot, domain.RoleCreateAdmin,
			domain.RoleAdmin, domain.RoleDevToken, domain.RoleServToken} {
			if set[r] {
				updated = append(updated, r)
			}
		}
		raw, err := marshalRoles(updated)
		if err != nil {
			return storageErr("update roles", err)
		}
		if err := tx.Model(&User{}).Where("id = ?", m.ID).
			Update("roles", raw).Error; err != nil {
			return storageErr("update roles", err)
		}
		return nil
	})
}

// GetUserDisplayNames implements storage.Storage.
func (s *Store) GetUserDisplayNames(ctx context.Context, names []domain.UserName) (map[domain.UserName]domain.DisplayName, error) {
	raw := make([]string, 0, len(names))
	for _, n := range names {
		raw = append(raw, n.Name())
	}
	var rows []User
	err := s.db.WithContext(ctx).Select("user_name", "display_name").
		Where("user_name IN ?", raw).Find(&rows).Error
	if err != nil {
		return nil, storageErr("get user display names", err)
	}
	return rowsToDisplayNames(rows)
}

// SearchUserDisplayNames implements storage.Storage. Prefix searches are
// pushed down as LIKE filters; regular-expression searches are evaluated in
// process since neither backend guarantees a REGEXP operator.
func (s *Store) SearchUserDisplayNames(ctx context.Context, spec domain.UserSearchSpec,
	limit int, includeRoot bool) (map[domain.UserName]domain.DisplayName, error) {
	q := s.db.WithContext(ctx).Model(&User{}).Select("users.user_name", "users.display_name")

	var re *regexp.Regexp
	if spec.HasSearchPrefix() {
		if spec.Regex {
			var err error
			re, err = regexp.Compile(spec.Prefix)
			if err != nil {
				return nil, domain.WrapError(domain.ErrIllegalParameter,
					fmt.Sprintf("Invalid search expression: %s", spec.Prefix), err)
			}
		} else {
			prefix := escapeLike(strings.ToLower(spec.Prefix)) + "%"
			searchUser := spec.SearchUserName
			searchDisplay := spec.SearchDisplayName
			if !searchUser && !searchDisplay {
				searchUser, searchDisplay = true, true
			}
			switch {
			case searchUser && searchDisplay:
				q = q.Where(`users.user_name LIKE ? ESCAPE '\' OR LOWER(users.display_name) LIKE ? ESCAPE '\'`,
					prefix, prefix)
			case searchUser:
				q = q.Where(`users.user_name LIKE ? ESCAPE '\'`, prefix)
			default:
				q = q.Where(`LOWER(users.display_name) LIKE ? ESCAPE '\'`, prefix)
			}
		}
	}
	if spec.IsRoleSearch() {
		for _, r := range spec.SearchRoles {
			q = q.Where("users.roles LIKE ?", `%"`+r.ID()+`"%`)
		}
	}
	if spec.IsCustomRoleSearch() {
		q = q.Distinct().
			Joins("JOIN user_custom_roles ucr ON ucr.user_id = users.id").
			Where("ucr.role_id IN ?", spec.SearchCustomRoles)
	}
	if !includeRoot {
		q = q.Where("users.user_name <> ?", domain.Root().Name())
	}
	if limit >= 1 && re == nil {
		q = q.Limit(limit)
	}
	var rows []User
	if err := q.Find(&rows).Error; err != nil {
		return nil, storageErr("search user display names", err)
	}
	if re != nil {
		searchUser := spec.SearchUserName
		searchDisplay := spec.SearchDisplayName
		if !searchUser && !searchDisplay {
			searchUser, searchDisplay = true, true
		}
		var filtered []User
		for _, row := range rows {
			if (searchUser && re.MatchString(row.UserName)) ||
				(searchDisplay && re.MatchString(strings.ToLower(row.DisplayName))) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
		if limit >= 1 && len(rows) > limit {
			rows = rows[:limit]
		}
	}
	return rowsToDisplayNames(rows)
}

// getUserModel loads a user row by name.
func (s *Store) getUserModel(ctx context.Context, tx *gorm.DB, name domain.UserName) (*User, error) {
	var m User
	err := tx.WithContext(ctx).First(&m, "user_name = ?", name.Name()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, noSuchUser(name)
		}
		return nil, storageErr("get user", err)
	}
	return &m, nil
}

// toAuthUser converts a user row and its associated rows to the domain
// type.
func (s *Store) toAuthUser(ctx context.Context, tx *gorm.DB, m *User) (*domain.AuthUser, error) {
	name, err := toUserName(m.UserName)
	if err != nil {
		return nil, storageErr("load user", err)
	}
	display, err := domain.NewDisplayName(m.DisplayName)
	if err != nil {
		return nil, storageErr("load user", err)
	}
	email := domain.UnknownEmail
	if m.Email != "" {
		email, err = domain.NewEmailAddress(m.Email)
		if err != nil {
			return nil, storageErr("load user", err)
		}
	}
	roles, err := unmarshalRoles(m.Roles)
	if err != nil {
		return nil, storageErr("load user", err)
	}
	var identityRows []Identity
	err = tx.WithContext(ctx).Where("user_id = ?", m.ID).
		Order("created_at ASC").Find(&identityRows).Error
	if err != nil {
		return nil, storageErr("load user", err)
	}
	identities := make([]domain.RemoteIdentityWithLocalID, 0, len(identityRows))
	for _, im := range identityRows {
		identities = append(identities, modelToIdentity(&im))
	}
	var customRows []UserCustomRole
	err = tx.WithContext(ctx).Where("user_id = ?", m.ID).
		Order("role_id ASC").Find(&customRows).Error
	if err != nil {
		return nil, storageErr("load user", err)
	}
	var custom []string
	for _, cr := range customRows {
		custom = append(custom, cr.RoleID)
	}
	u := &domain.AuthUser{
		UserName:       name,
		Email:          email,
		DisplayName:    display,
		Roles:          roles,
		CustomRoles:    custom,
		Identities:     identities,
		Created:        m.CreatedAt,
		LastLogin:      m.LastLoginAt,
		Disabled:       m.Disabled,
		DisabledReason: m.DisabledReason,
	}
	if m.DisabledBy != "" {
		by, err := toUserName(m.DisabledBy)
		if err != nil {
			return nil, storageErr("load user", err)
		}
		u.DisabledBy = by
	}
	return u, nil
}

func userToModel(u *domain.AuthUser) *User {
	roles, _ := marshalRoles(u.Roles)
	return &User{
		Base:        Base{CreatedAt: u.Created},
		UserName:    u.UserName.Name(),
		DisplayName: u.DisplayName.Name(),
		Email:       u.Email.Address(),
		Roles:       roles,
		LastLoginAt: u.LastLogin,
	}
}

func identityToModel(ri domain.RemoteIdentityWithLocalID, userID uuid.UUID) *Identity {
	return &Identity{
		Base:       Base{ID: ri.ID},
		UserID:     userID,
		Provider:   ri.RemoteID.Provider,
		ProviderID: ri.RemoteID.ID,
		Username:   ri.Details.Username,
		Fullname:   ri.Details.Fullname,
		Email:      ri.Details.Email,
	}
}

func modelToIdentity(im *Identity) domain.RemoteIdentityWithLocalID {
	return domain.RemoteIdentityWithLocalID{
		ID: im.ID,
		RemoteIdentity: domain.RemoteIdentity{
			RemoteID: domain.RemoteIdentityID{Provider: im.Provider, ID: im.ProviderID},
			Details: domain.RemoteIdentityDetails{
				Username: im.Username,
				Fullname: im.Fullname,
				Email:    im.Email,
			},
		},
	}
}

func rowsToDisplayNames(rows []User) (map[domain.UserName]domain.DisplayName, error) {
	out := make(map[domain.UserName]domain.DisplayName, len(rows))
	for _, row := range rows {
		name, err := toUserName(row.UserName)
		if err != nil {
			return nil, storageErr("load display names", err)
		}
		display, err := domain.NewDisplayName(row.DisplayName)
		if err != nil {
			return nil, storageErr("load display names", err)
		}
		out[name] = display
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
