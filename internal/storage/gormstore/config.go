package gormstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	"github.com/authgate-io/authgate/internal/domain"
)

// Configuration is stored as namespaced key-value settings:
//
//	login.allowed                      "true" | "false"
//	provider.<name>.enabled            "true" | "false"
//	provider.<name>.force-login-choice "true" | "false"
//	provider.<name>.force-link-choice  "true" | "false"
//	lifetime.<type>                    integer milliseconds
//	ext.<key>                          free-form, owned by outer layers
const (
	keyLoginAllowed   = "login.allowed"
	providerKeyPrefix = "provider."
	lifetimeKeyPrefix = "lifetime."
	externalKeyPrefix = "ext."
)

// GetConfig implements storage.Storage.
func (s *Store) GetConfig(ctx context.Context) (*domain.AuthConfigSet, error) {
	var rows []Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, storageErr("get config", err)
	}
	cfg := &domain.AuthConfigSet{
		Config: domain.AuthConfig{
			Providers:      map[string]domain.ProviderConfig{},
			TokenLifetimes: map[domain.TokenLifetimeType]time.Duration{},
		},
		External: map[string]string{},
	}
	for _, row := range rows {
		switch {
		case row.Key == keyLoginAllowed:
			cfg.Config.LoginAllowed = row.Value == "true"

		case strings.HasPrefix(row.Key, providerKeyPrefix):
			parts := strings.Split(strings.TrimPrefix(row.Key, providerKeyPrefix), ".")
			if len(parts) != 2 {
				continue
			}
			name, field := parts[0], parts[1]
			pc := cfg.Config.Providers[name]
			switch field {
			case "enabled":
				pc.Enabled = row.Value == "true"
			case "force-login-choice":
				pc.ForceLoginChoice = row.Value == "true"
			case "force-link-choice":
				pc.ForceLinkChoice = row.Value == "true"
			}
			cfg.Config.Providers[name] = pc

		case strings.HasPrefix(row.Key, lifetimeKeyPrefix):
			lt, ok := lifetimeFromKey(strings.TrimPrefix(row.Key, lifetimeKeyPrefix))
			if !ok {
				continue
			}
			ms, err := strconv.ParseInt(row.Value, 10, 64)
			if err != nil {
				return nil, storageErr("get config", err)
			}
			cfg.Config.TokenLifetimes[lt] = time.Duration(ms) * time.Millisecond

		case strings.HasPrefix(row.Key, externalKeyPrefix):
			cfg.External[strings.TrimPrefix(row.Key, externalKeyPrefix)] = row.Value
		}
	}
	return cfg, nil
}

// UpdateConfig implements storage.Storage.
func (s *Store) UpdateConfig(ctx context.Context, cfg *domain.AuthConfigSet, overwrite bool) error {
	entries := map[string]string{
		keyLoginAllowed: strconv.FormatBool(cfg.Config.LoginAllowed),
	}
	for name, pc := range cfg.Config.Providers {
		prefix := providerKeyPrefix + name + "."
		entries[prefix+"enabled"] = strconv.FormatBool(pc.Enabled)
		entries[prefix+"force-login-choice"] = strconv.FormatBool(pc.ForceLoginChoice)
		entries[prefix+"force-link-choice"] = strconv.FormatBool(pc.ForceLinkChoice)
	}
	for lt, d := range cfg.Config.TokenLifetimes {
		entries[lifetimeKeyPrefix+lt.String()] = strconv.FormatInt(d.Milliseconds(), 10)
	}
	for k, v := range cfg.External {
		entries[externalKeyPrefix+k] = v
	}

	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}
	if overwrite {
		conflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}
	}
	for k, v := range entries {
		row := &Setting{Key: k, Value: v}
		if err := s.db.WithContext(ctx).Clauses(conflict).Create(row).Error; err != nil {
			return storageErr("update config", err)
		}
	}
	return nil
}

func lifetimeFromKey(key string) (domain.TokenLifetimeType, bool) {
	for _, lt := range []domain.TokenLifetimeType{
		domain.LifetimeLogin, domain.LifetimeDev, domain.LifetimeServ, domain.LifetimeExtCache,
	} {
		if lt.String() == key {
			return lt, true
		}
	}
	return 0, false
}
