package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/service"
)

// FullSyncRunner is the part of the sync service the scheduler drives.
type FullSyncRunner interface {
	RunFullSync(ctx context.Context) service.SyncSummary
}

// RunSyncSchedule runs a full sync every interval until ctx ends. With runOnStart
// the first run happens immediately instead of after one interval.
func RunSyncSchedule(ctx context.Context, runner FullSyncRunner, interval time.Duration, runOnStart bool, logger *zap.Logger) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	logger.Info("sync scheduler started", zap.Duration("interval", interval), zap.Bool("run_on_start", runOnStart))

	if runOnStart {
		runScheduledSync(ctx, runner, logger)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			runScheduledSync(ctx, runner, logger)
		}
	}
}

func runScheduledSync(ctx context.Context, runner FullSyncRunner, logger *zap.Logger) {
	summary := runner.RunFullSync(ctx)
	fields := []zap.Field{
		zap.Bool("skipped", summary.Skipped),
		zap.Int("pages_queued", summary.PagesQueued),
		zap.Int("tickets_queued", summary.TicketsQueued),
		zap.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)),
	}
	if summary.Error != "" {
		logger.Error("scheduled sync failed", append(fields, zap.String("error", summary.Error))...)
		return
	}
	logger.Info("scheduled sync finished", fields...)
}
