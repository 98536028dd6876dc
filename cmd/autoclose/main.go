// Command autoclose runs one auto-close sweep and prints its summary as JSON.
// It is meant for external schedulers that prefer a job over the API
// server's built-in cron.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/app"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		nowFlag    string
		windowFlag time.Duration
		timeout    time.Duration
	)
	flagSet := pflag.NewFlagSet("autoclose", pflag.ContinueOnError)
	flagSet.StringVar(&nowFlag, "now", "", "sweep as of this RFC 3339 instant (default: current time)")
	flagSet.DurationVar(&windowFlag, "window", 0, "override SWEEP_INACTIVITY_WINDOW for this run")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Minute, "abort the sweep after this long")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if windowFlag > 0 {
		cfg.Sweep.InactivityWindow = windowFlag
	}
	// The job runs regardless of the server-side schedule toggle.
	cfg.Sweep.Enabled = true

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, cfg.App.Env, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	now := container.Clock.Now()
	if nowFlag != "" {
		parsed, err := time.Parse(time.RFC3339, nowFlag)
		if err != nil {
			return fmt.Errorf("--now: %w", err)
		}
		now = parsed.UTC()
	}

	result, err := container.Scheduler.RunOnce(ctx, now)
	if errors.Is(err, worker.ErrSweepLocked) {
		logger.Info("another sweep holds the lock; nothing to do")
		return nil
	}
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
