package gormstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate-io/authgate/internal/domain"
)

func TestGetConfigEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cfg, err := s.GetConfig(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.Config.LoginAllowed)
	assert.Empty(t, cfg.Config.Providers)
	assert.Empty(t, cfg.Config.TokenLifetimes)
	assert.Empty(t, cfg.External)
}

func TestUpdateConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	in := &domain.AuthConfigSet{
		Config: domain.AuthConfig{
			LoginAllowed: true,
			Providers: map[string]domain.ProviderConfig{
				"Globus": {Enabled: true, ForceLinkChoice: true},
			},
			TokenLifetimes: map[domain.TokenLifetimeType]time.Duration{
				domain.LifetimeLogin:    14 * 24 * time.Hour,
				domain.LifetimeExtCache: 5 * time.Minute,
			},
		},
		External: map[string]string{"ui-url": "https://ui.example.com"},
	}
	require.NoError(t, s.UpdateConfig(ctx, in, true))

	got, err := s.GetConfig(ctx)
	require.NoError(t, err)
	assert.True(t, got.Config.LoginAllowed)
	assert.Equal(t, domain.ProviderConfig{Enabled: true, ForceLinkChoice: true},
		got.Config.Providers["Globus"])
	assert.Equal(t, 14*24*time.Hour, got.Config.TokenLifetimes[domain.LifetimeLogin])
	assert.Equal(t, 5*time.Minute, got.Config.TokenLifetimes[domain.LifetimeExtCache])
	assert.Equal(t, "https://ui.example.com", got.External["ui-url"])
}

func TestUpdateConfigNoOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpdateConfig(ctx, &domain.AuthConfigSet{
		Config: domain.AuthConfig{
			LoginAllowed: true,
			Providers: map[string]domain.ProviderConfig{
				"Globus": {Enabled: true},
			},
		},
		External: map[string]string{"ui-url": "https://ui.example.com"},
	}, true))

	// Without overwrite only missing keys are written.
	require.NoError(t, s.UpdateConfig(ctx, &domain.AuthConfigSet{
		Config: domain.AuthConfig{
			LoginAllowed: false,
			Providers: map[string]domain.ProviderConfig{
				"Globus": {Enabled: false},
				"Google": {Enabled: true},
			},
		},
		External: map[string]string{
			"ui-url":  "https://other.example.com",
			"new-key": "fresh",
		},
	}, false))

	got, err := s.GetConfig(ctx)
	require.NoError(t, err)
	assert.True(t, got.Config.LoginAllowed)
	assert.True(t, got.Config.Providers["Globus"].Enabled)
	assert.True(t, got.Config.Providers["Google"].Enabled)
	assert.Equal(t, "https://ui.example.com", got.External["ui-url"])
	assert.Equal(t, "fresh", got.External["new-key"])
}

func TestUpdateConfigOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpdateConfig(ctx, &domain.AuthConfigSet{
		Config: domain.AuthConfig{LoginAllowed: false},
	}, true))
	require.NoError(t, s.UpdateConfig(ctx, &domain.AuthConfigSet{
		Config: domain.AuthConfig{LoginAllowed: true},
	}, true))

	got, err := s.GetConfig(ctx)
	require.NoError(t, err)
	assert.True(t, got.Config.LoginAllowed)
}
