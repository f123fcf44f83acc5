package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/authgate-io/authgate/internal/domain"
)

// SetCustomRole implements storage.Storage. An existing role id has its
// description replaced.
func (s *Store) SetCustomRole(ctx context.Context, role domain.CustomRole) error {
	m := &CustomRole{RoleID: role.ID, Description: role.Description}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "role_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return storageErr("set custom role", err)
	}
	return nil
}

// DeleteCustomRole implements storage.Storage. The role is removed from
// every user holding it.
func (s *Store) DeleteCustomRole(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&UserCustomRole{}, "role_id = ?", id).Error; err != nil {
			return storageErr("delete custom role", err)
		}
		result := tx.Delete(&CustomRole{}, "role_id = ?", id)
		if result.Error != nil {
			return storageErr("delete custom role", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.Errorf(domain.ErrNoSuchRole, "No such role: %s", id)
		}
		return nil
	})
}

// GetCustomRoles implements storage.Storage.
func (s *Store) GetCustomRoles(ctx context.Context) ([]domain.CustomRole, error) {
	var rows []CustomRole
	err := s.db.WithContext(ctx).Order("role_id ASC").Find(&rows).Error
	if err != nil {
		return nil, storageErr("get custom roles", err)
	}
	out := make([]domain.CustomRole, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.CustomRole{ID: row.RoleID, Description: row.Description})
	}
	return out, nil
}

// UpdateCustomRoles implements storage.Storage. Every added role id must
// exist.
func (s *Store) UpdateCustomRoles(ctx context.Context, name domain.UserName,
	add, remove []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.getUserModel(ctx, tx, name)
		if err != nil {
			return err
		}
		for _, roleID := range add {
			var role CustomRole
			err := tx.First(&role, "role_id = ?", roleID).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domain.Errorf(domain.ErrNoSuchRole, "No such role: %s", roleID)
				}
				return storageErr("update custom roles", err)
			}
			var existing UserCustomRole
			err = tx.First(&existing, "user_id = ? AND role_id = ?", m.ID, roleID).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return storageErr("update custom roles", err)
			}
			ucr := &UserCustomRole{UserID: m.ID, RoleID: roleID}
			if err := tx.Create(ucr).Error; err != nil {
				return storageErr("update custom roles", err)
			}
		}
		for _, roleID := range remove {
			var role CustomRole
			err := tx.First(&role, "role_id = ?", roleID).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domain.Errorf(domain.ErrNoSuchRole, "No such role: %s", roleID)
				}
				return storageErr("update custom roles", err)
			}
			err = tx.Delete(&UserCustomRole{}, "user_id = ? AND role_id = ?",
				m.ID, roleID).Error
			if err != nil {
				return storageErr("update custom roles", err)
			}
		}
		return nil
	})
}
