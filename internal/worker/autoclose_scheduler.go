package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/clock"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

// ErrSweepLocked is returned by RunOnce when another instance holds the sweep lock.
var ErrSweepLocked = errors.New("auto-close sweep already running")

// Sweeper runs one auto-close pass.
type Sweeper interface {
	Run(ctx context.Context, now time.Time) (service.SweepResult, error)
}

// AutoCloseScheduler triggers the sweep on a cron schedule.
type AutoCloseScheduler struct {
	cfg    config.SweepConfig
	sweep  Sweeper
	locker Locker
	clock  clock.Clock
	logger *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewAutoCloseScheduler builds the scheduler. A nil locker falls back to an
// in-process guard.
func NewAutoCloseScheduler(cfg config.SweepConfig, sweep Sweeper, locker Locker, clk clock.Clock, logger *zap.Logger) *AutoCloseScheduler {
	if locker == nil {
		locker = newLocalLocker()
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoCloseScheduler{cfg: cfg, sweep: sweep, locker: locker, clock: clk, logger: logger}
}

// Start registers the schedule and begins firing. It is a no-op when the
// sweep is disabled or already started.
func (s *AutoCloseScheduler) Start(ctx context.Context) error {
	if s == nil || s.sweep == nil || !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		_, _ = s.RunOnce(runCtx, s.clock.Now())
	}); err != nil {
		cancel()
		return fmt.Errorf("schedule sweep %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.logger.Info("auto-close sweep scheduled", zap.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep, bounded by ctx.
func (s *AutoCloseScheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs a sweep at now while holding the cluster-wide lock.
func (s *AutoCloseScheduler) RunOnce(ctx context.Context, now time.Time) (service.SweepResult, error) {
	release, ok, err := s.locker.Acquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
	if err != nil {
		s.logger.Error("sweep lock unavailable", zap.Error(err))
		return service.SweepResult{}, err
	}
	if !ok {
		s.logger.Info("auto-close sweep skipped; lock held elsewhere", zap.String("lock_key", s.cfg.LockKey))
		return service.SweepResult{}, ErrSweepLocked
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("sweep lock release failed", zap.Error(err))
		}
	}()

	if s.cfg.LockTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LockTTL)
		defer cancel()
	}
	return s.sweep.Run(ctx, now)
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
