package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/db"
)

const keyPrefix = "kopimap:rl:"

// windowStore is the consumer interface for the shared limiter (ISP).
type windowStore interface {
	SlideWindow(ctx context.Context, req db.WindowRequest) (db.WindowResult, error)
}

// Redis is a limiter shared by all instances. The sliding window runs as one
// server-side script, so concurrent checks for a client are serialised by
// Redis. Store failures admit the request.
type Redis struct {
	store    windowStore
	window   time.Duration
	capacity int
	now      func() time.Time
	errTotal prometheus.Counter
	logger   *zap.Logger
}

// NewRedis creates a shared limiter. errorsTotal may be nil.
func NewRedis(s windowStore, cfg Config, errorsTotal prometheus.Counter, logger *zap.Logger) (*Redis, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rate limit config: %w", err)
	}
	return &Redis{
		store:    s,
		window:   cfg.Window,
		capacity: cfg.Capacity,
		now:      time.Now,
		errTotal: errorsTotal,
		logger:   logger,
	}, nil
}

// Allow checks clientID against the current time.
func (r *Redis) Allow(ctx context.Context, clientID string) Decision {
	return r.AllowAt(ctx, clientID, r.now())
}

// AllowAt checks clientID at the given instant.
func (r *Redis) AllowAt(ctx context.Context, clientID string, now time.Time) Decision {
	res, err := r.store.SlideWindow(ctx, db.WindowRequest{
		Key:      keyPrefix + clientID,
		Now:      now,
		Window:   r.window,
		Capacity: r.capacity,
		Member:   uuid.NewString(),
	})
	if err != nil {
		if r.errTotal != nil {
			r.errTotal.Inc()
		}
		r.logger.Warn("Rate limit check failed, admitting request",
			zap.String("client_id", clientID), zap.Error(err))
		return allow(r.capacity - 1)
	}

	if !res.Allowed {
		oldest := res.Oldest
		if oldest.IsZero() {
			oldest = now
		}
		return deny(oldest, now, r.window)
	}
	return allow(max(r.capacity-res.Count, 0))
}
