package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/authgate-io/authgate/internal/domain"
)

// StoreToken implements storage.Storage.
func (s *Store) StoreToken(ctx context.Context, token *domain.HashedToken) error {
	m := &Token{
		Base:      Base{ID: token.ID, CreatedAt: token.Created},
		UserName:  token.UserName.Name(),
		Type:      token.Type.String(),
		Name:      token.Name,
		TokenHash: token.TokenHash,
		ExpiresAt: token.Expires,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			// A hash collision means the same token value was stored twice,
			// which the caller's CSPRNG makes effectively impossible.
			return domain.WrapError(domain.ErrStorage, "storage: token hash collision", err)
		}
		return storageErr("store token", err)
	}
	return nil
}

// GetToken implements storage.Storage. Expired tokens are reported as
// absent.
func (s *Store) GetToken(ctx context.Context, tokenHash string) (*domain.HashedToken, error) {
	var m Token
	err := s.db.WithContext(ctx).
		First(&m, "token_hash = ? AND expires_at > ?", tokenHash, time.Now()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.ErrNoSuchToken, "Token not found")
		}
		return nil, storageErr("get token", err)
	}
	return s.toHashedToken(&m)
}

// GetTokens implements storage.Storage.
func (s *Store) GetTokens(ctx context.Context, name domain.UserName) ([]*domain.HashedToken, error) {
	var rows []Token
	err := s.db.WithContext(ctx).
		Where("user_name = ? AND expires_at > ?", name.Name(), time.Now()).
		Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, storageErr("get tokens", err)
	}
	out := make([]*domain.HashedToken, 0, len(rows))
	for i := range rows {
		ht, err := s.toHashedToken(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, ht)
	}
	return out, nil
}

// DeleteToken implements storage.Storage.
func (s *Store) DeleteToken(ctx context.Context, name domain.UserName, id uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Delete(&Token{}, "id = ? AND user_name = ?", id, name.Name())
	if result.Error != nil {
		return storageErr("delete token", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.Errorf(domain.ErrNoSuchToken,
			"No token %s for user %s exists", id, name.Name())
	}
	return nil
}

// DeleteTokens implements storage.Storage.
func (s *Store) DeleteTokens(ctx context.Context, name domain.UserName) error {
	err := s.db.WithContext(ctx).Delete(&Token{}, "user_name = ?", name.Name()).Error
	if err != nil {
		return storageErr("delete tokens", err)
	}
	return nil
}

// DeleteAllTokens implements storage.Storage.
func (s *Store) DeleteAllTokens(ctx context.Context) error {
	err := s.db.WithContext(ctx).Where("1 = 1").Delete(&Token{}).Error
	if err != nil {
		return storageErr("delete all tokens", err)
	}
	return nil
}

// DeleteExpiredTokens implements storage.Storage.
func (s *Store) DeleteExpiredTokens(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).Delete(&Token{}).Error
	if err != nil {
		return storageErr("delete expired tokens", err)
	}
	return nil
}

// StoreTempIdentities implements storage.Storage.
func (s *Store) StoreTempIdentities(ctx context.Context, tokenHash string,
	ids domain.TempIdentities) error {
	raw, err := marshalIdentities(ids.Identities)
	if err != nil {
		return storageErr("store temp identities", err)
	}
	m := &TempState{
		TokenHash:  tokenHash,
		Identities: raw,
		ExpiresAt:  ids.Expires,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return storageErr("store temp identities", err)
	}
	return nil
}

// GetTempIdentities implements storage.Storage. Expired state is reported
// as absent.
func (s *Store) GetTempIdentities(ctx context.Context, tokenHash string) (domain.TempIdentities, error) {
	var m TempState
	err := s.db.WithContext(ctx).
		First(&m, "token_hash = ? AND expires_at > ?", tokenHash, time.Now()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TempIdentities{}, domain.NewError(domain.ErrNoSuchToken, "Token not found")
		}
		return domain.TempIdentities{}, storageErr("get temp identities", err)
	}
	ids, err := unmarshalIdentities(m.Identities)
	if err != nil {
		return domain.TempIdentities{}, storageErr("get temp identities", err)
	}
	return domain.TempIdentities{Identities: ids, Expires: m.ExpiresAt}, nil
}

// DeleteExpiredTempIdentities implements storage.Storage.
func (s *Store) DeleteExpiredTempIdentities(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).Delete(&TempState{}).Error
	if err != nil {
		return storageErr("delete expired temp identities", err)
	}
	return nil
}

func (s *Store) toHashedToken(m *Token) (*domain.HashedToken, error) {
	name, err := toUserName(m.UserName)
	if err != nil {
		return nil, storageErr("load token", err)
	}
	var tt domain.TokenType
	switch m.Type {
	case domain.TokenLogin.String():
		tt = domain.TokenLogin
	case domain.TokenExtended.String():
		tt = domain.TokenExtended
	default:
		return nil, domain.Errorf(domain.ErrStorage,
			"storage: unknown token type %q", m.Type)
	}
	return &domain.HashedToken{
		ID:        m.ID,
		Type:      tt,
		Name:      m.Name,
		UserName:  name,
		TokenHash: m.TokenHash,
		Created:   m.CreatedAt,
		Expires:   m.ExpiresAt,
	}, nil
}
