package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/db"
)

type mockWindowStore struct {
	slideFn func(ctx context.Context, req db.WindowRequest) (db.WindowResult, error)
	reqs    []db.WindowRequest
}

func (m *mockWindowStore) SlideWindow(ctx context.Context, req db.WindowRequest) (db.WindowResult, error) {
	m.reqs = append(m.reqs, req)
	return m.slideFn(ctx, req)
}

func newTestRedis(t *testing.T, s windowStore, errTotal prometheus.Counter) *Redis {
	t.Helper()
	r, err := NewRedis(s, Config{Window: time.Minute, Capacity: 10}, errTotal, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	return r
}

func TestRedis_Allowed(t *testing.T) {
	ms := &mockWindowStore{slideFn: func(_ context.Context, _ db.WindowRequest) (db.WindowResult, error) {
		return db.WindowResult{Allowed: true, Count: 4}, nil
	}}
	r := newTestRedis(t, ms, nil)

	d := r.AllowAt(context.Background(), "1.2.3.4", at(0))
	if !d.Allowed || d.Remaining != 6 {
		t.Errorf("decision = %+v", d)
	}

	req := ms.reqs[0]
	if req.Key != "kopimap:rl:1.2.3.4" {
		t.Errorf("Key = %q", req.Key)
	}
	if req.Window != time.Minute || req.Capacity != 10 || !req.Now.Equal(at(0)) {
		t.Errorf("req = %+v", req)
	}
	if req.Member == "" {
		t.Error("Member must be set")
	}
}

func TestRedis_UniqueMembers(t *testing.T) {
	ms := &mockWindowStore{slideFn: func(_ context.Context, _ db.WindowRequest) (db.WindowResult, error) {
		return db.WindowResult{Allowed: true, Count: 1}, nil
	}}
	r := newTestRedis(t, ms, nil)

	r.AllowAt(context.Background(), "X", at(0))
	r.AllowAt(context.Background(), "X", at(0))
	if ms.reqs[0].Member == ms.reqs[1].Member {
		t.Error("requests at the same instant must get distinct members")
	}
}

func TestRedis_Denied(t *testing.T) {
	ms := &mockWindowStore{slideFn: func(_ context.Context, _ db.WindowRequest) (db.WindowResult, error) {
		return db.WindowResult{Allowed: false, Count: 10, Oldest: at(20)}, nil
	}}
	r := newTestRedis(t, ms, nil)

	d := r.AllowAt(context.Background(), "X", at(50))
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if d.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", d.RetryAfter)
	}
}

func TestRedis_FailOpen(t *testing.T) {
	ms := &mockWindowStore{slideFn: func(_ context.Context, _ db.WindowRequest) (db.WindowResult, error) {
		return db.WindowResult{}, errors.New("connection refused")
	}}
	errTotal := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_rate_limit_errors_total"})
	r := newTestRedis(t, ms, errTotal)

	d := r.Allow(context.Background(), "X")
	if !d.Allowed {
		t.Error("store failure must admit the request")
	}
	if got := testutil.ToFloat64(errTotal); got != 1 {
		t.Errorf("errors counter = %v, want 1", got)
	}
}

func TestNewRedis_InvalidConfig(t *testing.T) {
	_, err := NewRedis(&mockWindowStore{}, Config{Window: time.Nanosecond}, nil, zap.NewNop())
	if err == nil {
		t.Fatal("expected error")
	}
}
