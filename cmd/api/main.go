package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-lifecycle/internal/api/http"
	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/app"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, cfg.App.Env, logger)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire services", zap.Error(err))
	}
	defer container.Close()

	if err := container.Scheduler.Start(ctx); err != nil {
		logger.Fatal("failed to schedule auto-close sweep", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	var authHandler *handlers.AuthHandler
	if cfg.App.Env != "production" {
		authHandler = handlers.NewAuthHandler(tokens)
	}

	fiberApp := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, container.Metrics),
	})
	httptransport.RegisterMiddlewares(fiberApp, logger, container.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(fiberApp, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, container.Postgres, container.Redis),
		Tickets:        handlers.NewTicketsHandler(container.Tickets, cfg.Lifecycle.ConflictRetries),
		Changelog:      handlers.NewChangelogHandler(container.Changelog),
		Watchers:       handlers.NewWatchersHandler(container.Watchers),
		Admin:          handlers.NewAdminHandler(container.Scheduler, container.Clock, container.Metrics),
		Auth:           authHandler,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := fiberApp.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := container.Scheduler.Stop(stopCtx); err != nil {
		logger.Warn("sweep did not stop in time", zap.Error(err))
	}
	_ = fiberApp.ShutdownWithContext(stopCtx)
	if err := shutdownTracing(stopCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
