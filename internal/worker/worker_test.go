package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/clock"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

type stubSweeper struct {
	mu    sync.Mutex
	calls []time.Time
	block chan struct{}
	err   error
}

func (s *stubSweeper) Run(ctx context.Context, now time.Time) (service.SweepResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, now)
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return service.SweepResult{}, ctx.Err()
		}
	}
	return service.SweepResult{Now: now, ClosedCount: 1}, s.err
}

func sweepConfig() config.SweepConfig {
	return config.SweepConfig{
		Enabled:  true,
		Schedule: "* * * * *",
		LockKey:  "test-lock",
		LockTTL:  time.Minute,
	}
}

func TestRunOncePassesNow(t *testing.T) {
	sweeper := &stubSweeper{}
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	s := NewAutoCloseScheduler(sweepConfig(), sweeper, nil, clock.NewFixed(now), nil)

	result, err := s.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if result.ClosedCount != 1 || len(sweeper.calls) != 1 || !sweeper.calls[0].Equal(now) {
		t.Fatalf("unexpected run %+v calls=%v", result, sweeper.calls)
	}
}

func TestRunOnceSkipsWhileLocked(t *testing.T) {
	sweeper := &stubSweeper{block: make(chan struct{})}
	s := NewAutoCloseScheduler(sweepConfig(), sweeper, nil, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background(), time.Now())
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for {
		sweeper.mu.Lock()
		started := len(sweeper.calls) == 1
		sweeper.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first sweep never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := s.RunOnce(context.Background(), time.Now()); !errors.Is(err, ErrSweepLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	close(sweeper.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := s.RunOnce(context.Background(), time.Now()); err != nil {
		t.Fatalf("lock should be released, got %v", err)
	}
}

type failingLocker struct{}

func (failingLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return nil, false, errors.New("redis down")
}

func TestRunOnceLockError(t *testing.T) {
	sweeper := &stubSweeper{}
	s := NewAutoCloseScheduler(sweepConfig(), sweeper, failingLocker{}, nil, nil)
	if _, err := s.RunOnce(context.Background(), time.Now()); err == nil {
		t.Fatalf("expected lock error")
	}
	if len(sweeper.calls) != 0 {
		t.Fatalf("sweep must not run without the lock")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := sweepConfig()
	cfg.Schedule = "not a schedule"
	s := NewAutoCloseScheduler(cfg, &stubSweeper{}, nil, nil, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestStartDisabledAndStop(t *testing.T) {
	cfg := sweepConfig()
	cfg.Enabled = false
	s := NewAutoCloseScheduler(cfg, &stubSweeper{}, nil, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start disabled: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	enabled := NewAutoCloseScheduler(sweepConfig(), &stubSweeper{}, nil, nil, nil)
	if err := enabled.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := enabled.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := enabled.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestEventRelayForwardsToSubscribers(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	StartEventRelay(dispatcher, nil, nil)

	var seen atomic.Int32
	events.Forward(dispatcher, func(context.Context, events.Event) error {
		seen.Add(1)
		return nil
	})
	if err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventSweepCompleted}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if seen.Load() != 1 {
		t.Fatalf("expected one delivery, got %d", seen.Load())
	}
}
