package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/bootstrap"
	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "run a single full sync and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer c.Close()

	if *once {
		summary := c.Sync.RunFullSync(ctx)
		logger.Info("sync finished",
			zap.Bool("skipped", summary.Skipped),
			zap.Int("pages_queued", summary.PagesQueued),
			zap.Int("tickets_queued", summary.TicketsQueued),
			zap.String("error", summary.Error))
		return
	}

	worker.RunSyncSchedule(ctx, c.Sync, cfg.Sync.Interval, cfg.Sync.RunOnStart, logger)
}
