package cafecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/db"
	"github.com/kopimap/kopimap-api/internal/domain/cafe"
	"github.com/kopimap/kopimap-api/internal/domain/cafe/patch"
)

const cacheKeyPrefix = "kopimap:cafe:"

// DefaultTTL applies when the configured TTL is not positive.
const DefaultTTL = 5 * time.Minute

// store is the consumer interface for the cafe cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// repository is the decorated cafe repository.
type repository interface {
	GetByID(ctx context.Context, id string) (cafe.Cafe, error)
	Update(ctx context.Context, p patch.Patch) (int64, error)
}

// Repo caches cafe documents in a key-value store. Cache failures are
// logged and never fail the request.
type Repo struct {
	inner      repository
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner repository,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Repo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Repo{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// GetByID returns a cached document or loads it from the inner repository.
// Missing documents are not cached.
func (r *Repo) GetByID(ctx context.Context, id string) (cafe.Cafe, error) {
	key := cacheKey(id)

	if c, ok := r.getFromCache(ctx, key); ok {
		r.incCache("hit")
		return c, nil
	}
	r.incCache("miss")

	c, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return cafe.Cafe{}, err
	}

	r.putToCache(ctx, key, &c)
	return c, nil
}

// Update forwards the patch and drops the cached copy.
func (r *Repo) Update(ctx context.Context, p patch.Patch) (int64, error) {
	uid, err := r.inner.Update(ctx, p)
	if err != nil {
		return 0, err
	}
	if err := r.store.Del(ctx, cacheKey(p.ID())); err != nil {
		r.logger.Warn("Failed to invalidate cached cafe", zap.String("id", p.ID()), zap.Error(err))
	}
	return uid, nil
}

func (r *Repo) incCache(result string) {
	if r.cacheTotal != nil {
		r.cacheTotal.WithLabelValues(result).Inc()
	}
}

func cacheKey(id string) string {
	return cacheKeyPrefix + id
}

func (r *Repo) getFromCache(ctx context.Context, key string) (cafe.Cafe, bool) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			r.logger.Warn("Failed to get cached cafe", zap.String("key", key), zap.Error(err))
		}
		return cafe.Cafe{}, false
	}
	if len(data) == 0 {
		return cafe.Cafe{}, false
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		r.logger.Warn("Failed to parse cached cafe", zap.String("key", key), zap.Error(err))
		return cafe.Cafe{}, false
	}
	return cafe.Reconstruct(fields), true
}

func (r *Repo) putToCache(ctx context.Context, key string, c *cafe.Cafe) {
	data, err := json.Marshal(c.Fields())
	if err != nil {
		r.logger.Warn("Failed to encode cafe for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.store.SetWithTTL(ctx, key, data, r.ttl); err != nil {
		r.logger.Warn("Failed to cache cafe", zap.String("key", key), zap.Error(fmt.Errorf("set: %w", err)))
	}
}
