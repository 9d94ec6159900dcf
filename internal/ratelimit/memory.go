package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Memory is an in-process sliding-window limiter. Clients are spread over
// shards by hash; each shard is an LRU of bounded size guarded by its own
// mutex, so checks for different clients rarely contend and the
// read-evict-check-append sequence for one client is serialised.
type Memory struct {
	window   time.Duration
	capacity int
	shards   []*shard
	now      func() time.Time
}

type shard struct {
	mu      sync.Mutex
	clients *simplelru.LRU[string, *timeline]
}

// timeline is the ordered list of admitted request times for one client.
type timeline struct {
	events []time.Time
}

// NewMemory creates an in-process limiter.
func NewMemory(cfg Config) (*Memory, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rate limit config: %w", err)
	}

	perShard := cfg.MaxClients / cfg.Shards
	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		lru, err := simplelru.NewLRU[string, *timeline](perShard, nil)
		if err != nil {
			return nil, fmt.Errorf("create shard: %w", err)
		}
		shards[i] = &shard{clients: lru}
	}

	return &Memory{
		window:   cfg.Window,
		capacity: cfg.Capacity,
		shards:   shards,
		now:      time.Now,
	}, nil
}

// Allow checks clientID against the current time.
func (m *Memory) Allow(_ context.Context, clientID string) Decision {
	return m.AllowAt(clientID, m.now())
}

// AllowAt checks clientID at the given instant. A rejected attempt is not
// recorded.
func (m *Memory) AllowAt(clientID string, now time.Time) Decision {
	s := m.shardFor(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()

	tl, ok := s.clients.Get(clientID)
	if !ok {
		tl = &timeline{}
	}
	tl.evict(now, m.window)

	if len(tl.events) >= m.capacity {
		return deny(tl.oldest(), now, m.window)
	}

	tl.events = append(tl.events, now)
	s.clients.Add(clientID, tl)
	return allow(m.capacity - len(tl.events))
}

// Sweep drops clients with no request inside the window and returns how
// many were removed.
func (m *Memory) Sweep(now time.Time) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for _, id := range s.clients.Keys() {
			tl, ok := s.clients.Peek(id)
			if !ok {
				continue
			}
			tl.evict(now, m.window)
			if len(tl.events) == 0 {
				s.clients.Remove(id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Clients returns the number of tracked client identifiers.
func (m *Memory) Clients() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += s.clients.Len()
		s.mu.Unlock()
	}
	return n
}

func (m *Memory) shardFor(clientID string) *shard {
	return m.shards[xxhash.Sum64String(clientID)%uint64(len(m.shards))]
}

// evict removes events with now - ts >= window, keeping order.
func (t *timeline) evict(now time.Time, window time.Duration) {
	kept := t.events[:0]
	for _, ts := range t.events {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}
	clear(t.events[len(kept):])
	t.events = kept
}

func (t *timeline) oldest() time.Time {
	oldest := t.events[0]
	for _, ts := range t.events[1:] {
		if ts.Before(oldest) {
			oldest = ts
		}
	}
	return oldest
}
