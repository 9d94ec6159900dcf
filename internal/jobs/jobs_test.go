package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// --- Mocks ---

type mockSweeper struct {
	removed   int
	remaining int
	sweptAt   []time.Time
}

func (m *mockSweeper) Sweep(now time.Time) int {
	m.sweptAt = append(m.sweptAt, now)
	return m.removed
}

func (m *mockSweeper) Clients() int { return m.remaining }

type mockRefresher struct {
	err   error
	calls int
}

func (m *mockRefresher) Refresh(_ context.Context) error {
	m.calls++
	return m.err
}

// --- Tests ---

func TestSweepLimiter_SetsGauge(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_tracked_clients"})
	l := &mockSweeper{removed: 3, remaining: 7}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	SweepLimiter(l, gauge, now, zap.NewNop())

	if len(l.sweptAt) != 1 || !l.sweptAt[0].Equal(now) {
		t.Fatalf("unexpected sweep calls: %v", l.sweptAt)
	}
	if got := testutil.ToFloat64(gauge); got != 7 {
		t.Errorf("gauge = %v, want 7", got)
	}
}

func TestSweepLimiter_NilGauge(t *testing.T) {
	l := &mockSweeper{}
	SweepLimiter(l, nil, time.Now(), zap.NewNop())

	if len(l.sweptAt) != 1 {
		t.Fatalf("expected one sweep, got %d", len(l.sweptAt))
	}
}

func TestRefreshSecrets_LogsFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := &mockRefresher{err: errors.New("secrets manager unavailable")}

	RefreshSecrets(context.Background(), r, zap.New(core))

	if r.calls != 1 {
		t.Fatalf("expected 1 refresh, got %d", r.calls)
	}
	if logs.FilterMessage("secret refresh failed").Len() != 1 {
		t.Error("expected refresh failure to be logged")
	}
}

func TestRefreshSecrets_OK(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := &mockRefresher{}

	RefreshSecrets(context.Background(), r, zap.New(core))

	if logs.Len() != 0 {
		t.Errorf("expected no warnings, got %d", logs.Len())
	}
}

func TestScheduler_AddJobs(t *testing.T) {
	s := New(nil)

	if err := s.AddLimiterSweep("@every 1m", &mockSweeper{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddSecretRefresh("*/5 * * * *", &mockRefresher{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 jobs, got %d", s.Len())
	}
}

func TestScheduler_EmptyScheduleDisables(t *testing.T) {
	s := New(zap.NewNop())

	if err := s.AddLimiterSweep("", &mockSweeper{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddSecretRefresh("@every 1m", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected no jobs, got %d", s.Len())
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(zap.NewNop())

	if err := s.AddLimiterSweep("every minute", &mockSweeper{}, nil); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(zap.NewNop())
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
