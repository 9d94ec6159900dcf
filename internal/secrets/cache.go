package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kopimap/kopimap-api/internal/domain"
)

// DefaultTTL applies when the configured TTL is not positive.
const DefaultTTL = 5 * time.Minute

type entry struct {
	value     string
	fetchedAt time.Time
}

// Cache memoizes provider lookups for a TTL. Concurrent misses for one name
// share a single provider call. When a refresh fails the last known value
// keeps being served.
type Cache struct {
	provider     Provider
	ttl          time.Duration
	now          func() time.Time
	group        singleflight.Group
	refreshTotal *prometheus.CounterVec
	logger       *zap.Logger

	mu      sync.RWMutex
	entries map[string]entry
}

// NewCache wraps p. refreshTotal (label "status") may be nil.
func NewCache(p Provider, ttl time.Duration, refreshTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		provider:     p,
		ttl:          ttl,
		now:          time.Now,
		refreshTotal: refreshTotal,
		logger:       logger,
		entries:      make(map[string]entry),
	}
}

// Get returns the secret value, loading it when absent or expired.
func (c *Cache) Get(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		return e.value, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		return c.load(ctx, name)
	})
	if err != nil {
		if ok && !errors.Is(err, domain.ErrSecretNotFound) {
			c.logger.Warn("Secret refresh failed, serving cached value",
				zap.String("secret", name), zap.Error(err))
			return e.value, nil
		}
		return "", err
	}
	return v.(string), nil
}

// Invalidate forgets a cached value so the next Get reloads it.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

// Refresh reloads every cached secret and returns the joined errors.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.RLock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	c.mu.RUnlock()

	var errs []error
	for _, name := range names {
		if _, err, _ := c.group.Do(name, func() (any, error) { return c.load(ctx, name) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Cache) load(ctx context.Context, name string) (string, error) {
	v, err := c.provider.Lookup(ctx, name)
	if err != nil {
		c.count("error")
		if errors.Is(err, domain.ErrSecretNotFound) {
			c.Invalidate(name)
		}
		return "", fmt.Errorf("load secret: %w", err)
	}
	c.count("ok")

	c.mu.Lock()
	c.entries[name] = entry{value: v, fetchedAt: c.now()}
	c.mu.Unlock()
	return v, nil
}

func (c *Cache) count(status string) {
	if c.refreshTotal != nil {
		c.refreshTotal.WithLabelValues(status).Inc()
	}
}
