package worker

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/queue"
	"github.com/spec-kit/ticket-sync/internal/service"
)

// RegisterJobHandlers binds every job type to its service handler.
func RegisterJobHandlers(w *queue.Worker, sync *service.SyncService, webhooks *service.WebhookService) {
	w.Handle(queue.JobSyncPage, sync.HandlePageJob)
	w.Handle(queue.JobSyncComplete, sync.HandleCompleteJob)
	w.Handle(queue.JobWebhookTicket, webhooks.HandleJob)
}

// RunQueueWorkers consumes the sync and webhook queues until ctx ends.
func RunQueueWorkers(ctx context.Context, w *queue.Worker, cfg config.QueueConfig, logger *zap.Logger) error {
	logger.Info("queue workers starting",
		zap.String("driver", cfg.Driver),
		zap.String("sync_queue", cfg.SyncQueue),
		zap.Int("sync_workers", cfg.SyncWorkers),
		zap.String("webhook_queue", cfg.WebhookQueue),
		zap.Int("webhook_workers", cfg.WebhookWorkers))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx, cfg.SyncQueue, cfg.SyncWorkers) })
	g.Go(func() error { return w.Run(gctx, cfg.WebhookQueue, cfg.WebhookWorkers) })
	return g.Wait()
}
