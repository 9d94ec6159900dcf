package db

import (
	"context"
	"time"
)

// Store is the Redis facade used by the cafe cache and the shared rate limiter.
type Store interface {
	Pinger
	KVStore
	WindowStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// WindowRequest describes one sliding-window admission check.
type WindowRequest struct {
	Key      string
	Now      time.Time
	Window   time.Duration
	Capacity int
	// Member uniquely names the event recorded on admission.
	Member string
}

// WindowResult is the outcome of a sliding-window check.
type WindowResult struct {
	Allowed bool
	// Count is the number of events inside the window after the check.
	Count int
	// Oldest is the timestamp of the oldest event still inside the window
	// (zero when the window is empty).
	Oldest time.Time
}

// WindowStore evaluates sliding-window admission atomically on the server.
type WindowStore interface {
	SlideWindow(ctx context.Context, req WindowRequest) (WindowResult, error)
}
