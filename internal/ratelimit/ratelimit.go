// Package ratelimit admits or rejects requests per client identifier using a
// sliding window of recent request timestamps.
package ratelimit

import (
	"fmt"
	"time"
)

// Defaults match the public search endpoint: 100 requests per 60 s.
const (
	DefaultWindow     = 60 * time.Second
	DefaultCapacity   = 100
	DefaultMaxClients = 100_000
	DefaultShards     = 32
)

// AnonymousClient identifies requests whose origin cannot be resolved.
// They share one window.
const AnonymousClient = "anonymous"

// Config holds limiter parameters.
type Config struct {
	Window   time.Duration
	Capacity int
	// MaxClients bounds the number of tracked identifiers (memory driver).
	MaxClients int
	// Shards is the number of independently locked partitions (memory driver).
	Shards int
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.MaxClients <= 0 {
		c.MaxClients = DefaultMaxClients
	}
	if c.Shards <= 0 {
		c.Shards = DefaultShards
	}
}

// Validate checks the configuration after defaults were applied.
func (c *Config) Validate() error {
	if c.Window < time.Millisecond {
		return fmt.Errorf("window must be at least 1ms")
	}
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be positive")
	}
	if c.MaxClients < c.Shards {
		return fmt.Errorf("max_clients (%d) must be >= shards (%d)", c.MaxClients, c.Shards)
	}
	return nil
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// Remaining is the number of further requests admitted in the current window.
	Remaining int
	// RetryAfter is how long until the oldest recorded request leaves the
	// window. Zero when Allowed.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds (minimum 1 on denial).
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func allow(remaining int) Decision {
	return Decision{Allowed: true, Remaining: remaining}
}

func deny(oldest, now time.Time, window time.Duration) Decision {
	wait := oldest.Add(window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return Decision{RetryAfter: wait}
}
