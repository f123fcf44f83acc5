package auth

import (
	"context"
	"sync"
	"time"

	"github.com/authgate-io/authgate/internal/domain"
	"github.com/authgate-io/authgate/internal/metrics"
	"github.com/authgate-io/authgate/internal/storage"
)

// configUpdateInterval is how long a cached configuration stays fresh.
const configUpdateInterval = 30 * time.Second

// configCache caches the server configuration to avoid a storage read on
// every request. Readers of a fresh cache proceed under a shared lock;
// refreshes are serialized under the write lock so concurrent stale readers
// coalesce into one storage read.
type configCache struct {
	storage storage.Storage
	metrics *metrics.Metrics

	mu         sync.RWMutex
	cfg        *domain.AuthConfigSet
	nextUpdate time.Time
}

func newConfigCache(ctx context.Context, store storage.Storage, m *metrics.Metrics) (*configCache, error) {
	c := &configCache{storage: store, metrics: m}
	if err := c.update(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// get returns the cached configuration, refreshing it first if stale.
func (c *configCache) get(ctx context.Context) (*domain.AuthConfigSet, error) {
	c.mu.RLock()
	if time.Now().Before(c.nextUpdate) {
		cfg := c.cfg
		c.mu.RUnlock()
		return cfg, nil
	}
	c.mu.RUnlock()
	if err := c.update(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg, nil
}

// appConfig returns the engine portion of the cached configuration.
func (c *configCache) appConfig(ctx context.Context) (domain.AuthConfig, error) {
	cfg, err := c.get(ctx)
	if err != nil {
		return domain.AuthConfig{}, err
	}
	return cfg.Config, nil
}

// update forces a storage read. A goroutine that lost the race for the
// write lock reuses the winner's read instead of issuing its own.
func (c *configCache) update(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().Before(c.nextUpdate) {
		return nil
	}
	cfg, err := c.storage.GetConfig(ctx)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.nextUpdate = time.Now().Add(configUpdateInterval)
	c.metrics.ConfigRefreshes.Inc()
	return nil
}

// invalidate marks the cache stale so the next read hits storage. Used
// after configuration writes.
func (c *configCache) invalidate() {
	c.mu.Lock()
	c.nextUpdate = time.Time{}
	c.mu.Unlock()
}
