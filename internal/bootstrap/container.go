package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/auth"
	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/lease"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/persistence"
	"github.com/spec-kit/ticket-sync/internal/queue"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/service"
	"github.com/spec-kit/ticket-sync/internal/tito"
	"github.com/spec-kit/ticket-sync/internal/worker"
)

// Container holds the process-wide collaborators shared by the api, worker and scheduler binaries.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Queue    queue.Queue

	Users       repository.UserRepository
	Tickets     repository.TicketRepository
	Revocations auth.RevocationStore
	Verifier    *auth.SignatureVerifier

	Reconciler    *service.ReconciliationService
	Sync          *service.SyncService
	Webhooks      *service.WebhookService
	Auth          *service.AuthService
	TicketService *service.TicketService
	Notifications *service.NotificationService
}

// Build connects storage and wires every service. Close must be called on success.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	rdb := persistence.NewRedis(cfg.Redis, logger)
	q, err := queue.New(cfg, rdb, logger)
	if err != nil {
		rdb.Close()
		pg.Close()
		return nil, err
	}

	titoClient := tito.NewClient(cfg.Tito, nil, logger)
	if err := titoClient.Validate(); err != nil {
		logger.Warn("tito client is not fully configured", zap.Error(err))
	}

	pool := pg.PoolHandle()
	users := repository.NewUserRepository(pool)
	tickets := repository.NewTicketRepository(pool)
	authTokens := repository.NewAuthTokenRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	flag := lease.NewRedisLease(rdb.Client, rdb.Key("is_syncing"))
	locker := lease.NewRedisKeyedLocker(rdb.Client, rdb.Key("ticket-lock"), cfg.Sync.LockTTL, cfg.Sync.LockWait)
	verifier := auth.NewSignatureVerifier(cfg.Tito.WebhookSecret)
	revocations := auth.NewRedisRevocationStore(rdb.Client, cfg.Redis.KeyPrefix)

	reconciler := service.NewReconciliationService(service.ReconciliationDependencies{
		UserRepo:   users,
		TicketRepo: tickets,
		Locker:     locker,
		Dispatcher: dispatcher,
		BcryptCost: cfg.Auth.BcryptCost,
		Logger:     logger,
		Metrics:    metrics,
	})

	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification, cfg.App.URL)
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:      users,
		AuthTokenRepo: authTokens,
		Source:        titoClient,
		Revocations:   revocations,
		Mailer:        notifications,
		Logger:        logger,
	})
	worker.StartNotificationWorker(notifications, authService)

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Postgres:    pg,
		Redis:       rdb,
		Queue:       q,
		Users:       users,
		Tickets:     tickets,
		Revocations: revocations,
		Verifier:    verifier,
		Reconciler:  reconciler,
		Sync: service.NewSyncService(cfg.Sync, service.SyncDependencies{
			Source:     titoClient,
			Queue:      q,
			Flag:       flag,
			Reconciler: reconciler,
			QueueName:  cfg.Queue.SyncQueue,
			Logger:     logger,
			Metrics:    metrics,
		}),
		Webhooks: service.NewWebhookService(service.WebhookDependencies{
			Flag:       flag,
			Verifier:   verifier,
			Queue:      q,
			QueueName:  cfg.Queue.WebhookQueue,
			Reconciler: reconciler,
			Logger:     logger,
		}),
		Auth:          authService,
		TicketService: service.NewTicketService(service.TicketDependencies{TicketRepo: tickets, UserRepo: users}),
		Notifications: notifications,
	}, nil
}

// NewQueueWorker returns a worker with every job handler registered.
func (c *Container) NewQueueWorker() *queue.Worker {
	w := queue.NewWorker(c.Queue, c.Config.Queue, c.Logger, c.Metrics)
	worker.RegisterJobHandlers(w, c.Sync, c.Webhooks)
	return w
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			c.Logger.Warn("queue close failed", zap.Error(err))
		}
	}
	c.Redis.Close()
	c.Postgres.Close()
}
