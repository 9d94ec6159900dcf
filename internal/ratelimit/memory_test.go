package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return epoch.Add(time.Duration(sec * float64(time.Second)))
}

func newTestMemory(t *testing.T, cfg Config) *Memory {
	t.Helper()
	m, err := NewMemory(cfg)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return m
}

func TestMemory_SlidingWindow(t *testing.T) {
	m := newTestMemory(t, Config{Window: 60 * time.Second, Capacity: 3})

	steps := []struct {
		client string
		sec    float64
		want   bool
	}{
		{"X", 0, true},
		{"X", 0, true},
		{"X", 0, true},
		{"X", 1, false},
		{"Y", 1, true},
		{"X", 59.999, false},
		{"X", 60, true},
		{"X", 61, true},
		{"X", 61, true},
		{"X", 61, false},
	}

	for i, s := range steps {
		got := m.AllowAt(s.client, at(s.sec))
		if got.Allowed != s.want {
			t.Fatalf("step %d (%s at t=%v): Allowed = %v, want %v", i, s.client, s.sec, got.Allowed, s.want)
		}
	}
}

func TestMemory_DenialDoesNotRecord(t *testing.T) {
	m := newTestMemory(t, Config{Window: 10 * time.Second, Capacity: 1})

	if !m.AllowAt("X", at(0)).Allowed {
		t.Fatal("first request must be admitted")
	}
	// A steady stream of rejected attempts must not extend the window.
	for sec := 1.0; sec < 10; sec++ {
		if m.AllowAt("X", at(sec)).Allowed {
			t.Fatalf("t=%v: admitted while window is full", sec)
		}
	}
	if !m.AllowAt("X", at(10)).Allowed {
		t.Fatal("t=10: first request left the window, expected admission")
	}
}

func TestMemory_Decision(t *testing.T) {
	m := newTestMemory(t, Config{Window: 60 * time.Second, Capacity: 2})

	d := m.AllowAt("X", at(0))
	if !d.Allowed || d.Remaining != 1 || d.RetryAfter != 0 {
		t.Errorf("first = %+v", d)
	}
	d = m.AllowAt("X", at(10))
	if !d.Allowed || d.Remaining != 0 {
		t.Errorf("second = %+v", d)
	}
	d = m.AllowAt("X", at(15))
	if d.Allowed {
		t.Fatalf("third = %+v, want denied", d)
	}
	if d.RetryAfter != 45*time.Second {
		t.Errorf("RetryAfter = %v, want 45s", d.RetryAfter)
	}
	if d.RetryAfterSeconds() != 45 {
		t.Errorf("RetryAfterSeconds() = %d", d.RetryAfterSeconds())
	}
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	tests := []struct {
		d    Decision
		want int
	}{
		{Decision{Allowed: true}, 0},
		{Decision{RetryAfter: 0}, 1},
		{Decision{RetryAfter: 1500 * time.Millisecond}, 2},
		{Decision{RetryAfter: 3 * time.Second}, 3},
	}
	for _, tt := range tests {
		if got := tt.d.RetryAfterSeconds(); got != tt.want {
			t.Errorf("%+v.RetryAfterSeconds() = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestMemory_ConcurrentBoundary(t *testing.T) {
	const capacity = 100
	m := newTestMemory(t, Config{Window: time.Minute, Capacity: capacity})
	now := at(0)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for range 500 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.AllowAt("X", now).Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != capacity {
		t.Errorf("admitted = %d, want %d", got, capacity)
	}
}

func TestMemory_ConcurrentClientsIndependent(t *testing.T) {
	m := newTestMemory(t, Config{Window: time.Minute, Capacity: 5})

	var wg sync.WaitGroup
	var admitted atomic.Int64
	for c := range 20 {
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if m.Allow(context.Background(), fmt.Sprintf("client-%d", c)).Allowed {
					admitted.Add(1)
				}
			}()
		}
	}
	wg.Wait()

	if got := admitted.Load(); got != 20*5 {
		t.Errorf("admitted = %d, want %d", got, 100)
	}
}

func TestMemory_BoundedClients(t *testing.T) {
	m := newTestMemory(t, Config{Window: time.Minute, Capacity: 1, MaxClients: 4, Shards: 1})

	for i := range 10 {
		m.AllowAt(fmt.Sprintf("c%d", i), at(0))
	}
	if got := m.Clients(); got != 4 {
		t.Errorf("Clients() = %d, want 4", got)
	}

	// Evicted least-recent clients start over with an empty window.
	if !m.AllowAt("c0", at(1)).Allowed {
		t.Error("evicted client should be admitted again")
	}
	if m.AllowAt("c9", at(1)).Allowed {
		t.Error("recent client should still be limited")
	}
}

func TestMemory_Sweep(t *testing.T) {
	m := newTestMemory(t, Config{Window: 10 * time.Second, Capacity: 5})

	m.AllowAt("old", at(0))
	m.AllowAt("fresh", at(8))

	if removed := m.Sweep(at(12)); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if got := m.Clients(); got != 1 {
		t.Errorf("Clients() = %d, want 1", got)
	}
	if removed := m.Sweep(at(30)); removed != 1 {
		t.Errorf("second Sweep() removed %d, want 1", removed)
	}
}

func TestMemory_UsesClock(t *testing.T) {
	m := newTestMemory(t, Config{Window: time.Minute, Capacity: 1})
	m.now = func() time.Time { return at(0) }

	if !m.Allow(context.Background(), AnonymousClient).Allowed {
		t.Fatal("first request must be admitted")
	}
	if m.Allow(context.Background(), AnonymousClient).Allowed {
		t.Fatal("second request must be denied")
	}
	m.now = func() time.Time { return at(60) }
	if !m.Allow(context.Background(), AnonymousClient).Allowed {
		t.Fatal("request after the window must be admitted")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"sub-millisecond window", Config{Window: time.Microsecond}, true},
		{"fewer clients than shards", Config{MaxClients: 4, Shards: 8}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Window != 60*time.Second || cfg.Capacity != 100 {
		t.Errorf("defaults = %+v", cfg)
	}
}
