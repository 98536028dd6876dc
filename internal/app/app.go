// Package app assembles the lifecycle services from configuration. Both the
// API server and the one-shot sweep binary start from here.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/clock"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/persistence"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/repository/memory"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/internal/worker"
)

// Stores are the repositories the services run on.
type Stores struct {
	Tickets   repository.TicketRepository
	Changelog repository.ChangelogRepository
	Watchers  repository.WatcherRepository
}

// Container holds the wired services and their infrastructure.
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      clock.Clock
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Stores     Stores
	Dispatcher events.Dispatcher

	Tickets       *service.TicketService
	Changelog     *service.ChangelogService
	Watchers      *service.WatcherService
	Sweep         *service.AutoCloseService
	Notifications *service.NotificationService
	Scheduler     *worker.AutoCloseScheduler
}

// New connects the configured stores and builds every service. Without a
// POSTGRES_DSN the in-memory store is used.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{
		Config:     cfg,
		Logger:     logger,
		Metrics:    observability.NewMetrics(),
		Clock:      clock.System{},
		Dispatcher: events.NewInMemoryDispatcher(),
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.Postgres = pg
	if pg.Available() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		pool := pg.PoolHandle()
		c.Stores = Stores{
			Tickets:   repository.NewTicketRepository(pool),
			Changelog: repository.NewChangelogRepository(pool),
			Watchers:  repository.NewWatcherRepository(pool),
		}
	} else {
		logger.Warn("running on the in-memory store; data is lost on restart")
		store := memory.New()
		c.Stores = Stores{Tickets: store.Tickets(), Changelog: store.Changelog(), Watchers: store.Watchers()}
	}

	c.Redis = persistence.NewRedis(ctx, cfg.Redis, logger)

	authz, err := auth.NewPolicyAuthorizer(cfg.Auth.PolicyPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("load authorization policy: %w", err)
	}

	c.Tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo: c.Stores.Tickets,
		Authorizer: authz,
		Clock:      c.Clock,
		Dispatcher: c.Dispatcher,
		Logger:     logger,
		Metrics:    c.Metrics,
		InitialStatus: service.InitialStatusPolicy{
			Default:        domain.TicketStatus(cfg.Lifecycle.DefaultInitialStatus),
			InternalReview: cfg.Lifecycle.InternalReviewTenantSet(),
		},
	})
	c.Changelog = service.NewChangelogService(c.Stores.Tickets, c.Stores.Changelog, c.Clock, cfg.Lifecycle.ChangelogPageSize)
	c.Watchers = service.NewWatcherService(c.Tickets, c.Stores.Watchers, cfg.Lifecycle.ConflictRetries)
	c.Sweep = service.NewAutoCloseService(c.Tickets, c.Stores.Tickets, service.AutoCloseConfig{
		InactivityWindow: cfg.Sweep.InactivityWindow,
		BatchSize:        cfg.Sweep.BatchSize,
		Concurrency:      cfg.Sweep.Concurrency,
		ConflictRetries:  cfg.Lifecycle.ConflictRetries,
	})
	c.Notifications = service.NewNotificationService(c.Stores.Watchers, logger)

	var (
		locker    worker.Locker
		publisher *events.RedisPublisher
	)
	if c.Redis.Available() {
		locker = worker.NewRedisLocker(c.Redis.Client)
		publisher = events.NewRedisPublisher(c.Redis.Client, cfg.Events.RedisChannel)
	}
	worker.StartEventRelay(c.Dispatcher, c.Notifications, publisher)
	c.Scheduler = worker.NewAutoCloseScheduler(cfg.Sweep, c.Sweep, locker, c.Clock, logger)
	return c, nil
}

// Close releases store connections.
func (c *Container) Close() {
	c.Redis.Close()
	c.Postgres.Close()
}
