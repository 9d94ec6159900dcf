package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultRefreshTimeout bounds a single secret refresh run.
const DefaultRefreshTimeout = 30 * time.Second

// Sweeper drops idle client timelines from an in-process limiter.
type Sweeper interface {
	Sweep(now time.Time) int
	Clients() int
}

// Refresher reloads cached secrets from their provider.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs periodic maintenance on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	now    func() time.Time
}

// New creates a scheduler. Overlapping runs of the same job are skipped and
// panics are recovered.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger: logger.Named("jobs")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		now:    time.Now,
	}
}

// AddLimiterSweep schedules idle-client eviction and updates gauge with the
// number of clients still tracked. An empty schedule disables the job.
func (s *Scheduler) AddLimiterSweep(schedule string, l Sweeper, gauge prometheus.Gauge) error {
	if schedule == "" || l == nil {
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		SweepLimiter(l, gauge, s.now(), s.logger)
	}); err != nil {
		return fmt.Errorf("schedule limiter sweep %q: %w", schedule, err)
	}
	return nil
}

// AddSecretRefresh schedules a full secret reload. An empty schedule disables the job.
func (s *Scheduler) AddSecretRefresh(schedule string, r Refresher) error {
	if schedule == "" || r == nil {
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultRefreshTimeout)
		defer cancel()
		RefreshSecrets(ctx, r, s.logger)
	}); err != nil {
		return fmt.Errorf("schedule secret refresh %q: %w", schedule, err)
	}
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("jobs still running at shutdown")
	}
}

// SweepLimiter evicts idle clients as of now and reports what remains.
func SweepLimiter(l Sweeper, gauge prometheus.Gauge, now time.Time, logger *zap.Logger) {
	removed := l.Sweep(now)
	remaining := l.Clients()
	if gauge != nil {
		gauge.Set(float64(remaining))
	}
	if removed > 0 {
		logger.Debug("limiter sweep",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining),
		)
	}
}

// RefreshSecrets reloads secrets. Failures are logged; cached values stay in use.
func RefreshSecrets(ctx context.Context, r Refresher, logger *zap.Logger) {
	if err := r.Refresh(ctx); err != nil {
		logger.Warn("secret refresh failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
