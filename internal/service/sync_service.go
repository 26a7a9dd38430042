package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/lease"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/queue"
	"github.com/spec-kit/ticket-sync/internal/tito"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// ErrSyncInProgress is returned when the sync flag is already held.
var ErrSyncInProgress = apperrors.NewTooManyRequests("SYNC_IN_PROGRESS", "ticket synchronization in progress, try again later")

// SyncPagePayload is the body of a sync.page job.
type SyncPagePayload struct {
	Page    int           `json:"page"`
	Final   bool          `json:"final"`
	Tickets []tito.Ticket `json:"tickets"`
}

// SyncSummary reports what one bulk sync run did.
type SyncSummary struct {
	Skipped       bool      `json:"skipped"`
	PagesQueued   int       `json:"pages_queued"`
	TicketsQueued int       `json:"tickets_queued"`
	MarkerQueued  bool      `json:"marker_queued"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// SyncService pages the remote catalogue into queued reconciliation work.
type SyncService struct {
	source     tito.Source
	queue      queue.Queue
	flag       lease.Lease
	reconciler TicketReconciler
	cfg        config.SyncConfig
	queueName  string
	logger     *zap.Logger
	metrics    *observability.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

// SyncDependencies bundles collaborators for the sync service.
type SyncDependencies struct {
	Source     tito.Source
	Queue      queue.Queue
	Flag       lease.Lease
	Reconciler TicketReconciler
	QueueName  string
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewSyncService constructs the service.
func NewSyncService(cfg config.SyncConfig, deps SyncDependencies) *SyncService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 5
	}
	if cfg.FlagTTL <= 0 {
		cfg.FlagTTL = 45 * time.Minute
	}
	queueName := deps.QueueName
	if queueName == "" {
		queueName = "sync-tickets"
	}
	return &SyncService{
		source:     deps.Source,
		queue:      deps.Queue,
		flag:       deps.Flag,
		reconciler: deps.Reconciler,
		cfg:        cfg,
		queueName:  queueName,
		logger:     logger.Named("sync"),
		metrics:    deps.Metrics,
		sleep:      sleepContext,
	}
}

// RunFullSync pages every remote ticket into sync.page jobs. Failures are logged and
// reported in the summary, never returned.
func (s *SyncService) RunFullSync(ctx context.Context) (summary SyncSummary) {
	summary.StartedAt = time.Now().UTC()
	defer func() { summary.FinishedAt = time.Now().UTC() }()

	acquired, err := s.flag.Acquire(ctx, s.cfg.FlagTTL)
	if err != nil {
		s.logger.Error("sync flag unavailable", zap.Error(err))
		s.metrics.RecordSyncRun("error")
		summary.Error = err.Error()
		return summary
	}
	if !acquired {
		s.logger.Info("sync already running; skipping")
		s.metrics.RecordSyncRun("skipped")
		summary.Skipped = true
		return summary
	}
	defer s.releaseFlag("orchestrator")

	s.logger.Info("ticket synchronization started")
	finalQueued := false
	page := 1
	for {
		result, err := s.source.FetchTickets(ctx, tito.TicketQuery{
			Sort:      "created_at",
			Direction: "asc",
			Page:      page,
			PageSize:  s.cfg.PageSize,
			View:      "short",
		})
		if err != nil {
			s.logger.Error("fetch tickets failed", zap.Int("page", page), zap.Error(err))
			summary.Error = err.Error()
			break
		}
		if len(result.Tickets) == 0 {
			if page == 1 {
				s.logger.Error("remote returned no tickets")
				summary.Error = "no tickets found"
			} else {
				s.logger.Info("empty page; stopping", zap.Int("page", page))
			}
			break
		}

		next := result.NextPageNumber()
		final := next > result.Meta.TotalPages
		job, err := queue.NewJob(queue.JobSyncPage, SyncPagePayload{Page: page, Final: final, Tickets: result.Tickets})
		if err == nil {
			err = s.queue.Enqueue(ctx, s.queueName, job)
		}
		if err != nil {
			s.logger.Error("enqueue page failed", zap.Int("page", page), zap.Error(err))
			summary.Error = err.Error()
			break
		}
		summary.PagesQueued++
		summary.TicketsQueued += len(result.Tickets)
		s.logger.Info("page queued",
			zap.Int("page", page),
			zap.Int("tickets", len(result.Tickets)),
			zap.Int("total_pages", result.Meta.TotalPages))

		if final {
			finalQueued = true
			break
		}
		page = next

		if err := s.sleep(ctx, s.cfg.Throttle); err != nil {
			s.logger.Warn("sync interrupted", zap.Error(err))
			summary.Error = err.Error()
			break
		}
	}

	if summary.PagesQueued > 0 && !finalQueued {
		s.enqueueCompletionMarker(ctx, &summary)
	}

	result := "ok"
	if summary.Error != "" {
		result = "error"
	}
	s.metrics.RecordSyncRun(result)
	s.logger.Info("ticket synchronization finished",
		zap.Int("pages", summary.PagesQueued),
		zap.Int("tickets", summary.TicketsQueued))
	return summary
}

func (s *SyncService) enqueueCompletionMarker(ctx context.Context, summary *SyncSummary) {
	job, err := queue.NewJob(queue.JobSyncComplete, struct{}{})
	if err == nil {
		err = s.queue.Enqueue(context.WithoutCancel(ctx), s.queueName, job)
	}
	if err != nil {
		s.logger.Error("enqueue completion marker failed", zap.Error(err))
		return
	}
	summary.MarkerQueued = true
}

// TriggerAsync starts RunFullSync in the background unless a run holds the flag.
func (s *SyncService) TriggerAsync(ctx context.Context) error {
	held, err := s.flag.IsHeld(ctx)
	if err != nil {
		return apperrors.NewServiceUnavailable("sync flag unavailable", err)
	}
	if held {
		return ErrSyncInProgress
	}
	go s.RunFullSync(context.WithoutCancel(ctx))
	return nil
}

// HandlePageJob reconciles every ticket of a page. Per-ticket failures are logged and skipped.
func (s *SyncService) HandlePageJob(ctx context.Context, job *queue.Job) error {
	var payload SyncPagePayload
	if err := job.Decode(&payload); err != nil {
		return err
	}

	logger := s.logger.With(zap.Int("page", payload.Page), zap.String("job_id", job.ID))
	logger.Info("processing page", zap.Int("tickets", len(payload.Tickets)))

	for _, ticket := range payload.Tickets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.reconciler.Reconcile(ctx, eventFromTicket(ticket, "")); err != nil {
			logger.Error("ticket reconciliation failed", zap.String("reference_id", ticket.Reference), zap.Error(err))
		}
	}

	if payload.Final {
		s.releaseFlag("final page")
	}
	return nil
}

// HandleCompleteJob clears the sync flag once the queued pages ahead of it drained.
func (s *SyncService) HandleCompleteJob(ctx context.Context, job *queue.Job) error {
	s.releaseFlag("completion marker")
	return nil
}

func (s *SyncService) releaseFlag(by string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.flag.Release(ctx); err != nil {
		s.logger.Error("sync flag release failed", zap.String("by", by), zap.Error(err))
		return
	}
	s.logger.Debug("sync flag cleared", zap.String("by", by))
}

func eventFromTicket(t tito.Ticket, trigger string) domain.TicketEvent {
	return domain.TicketEvent{
		ReferenceID:  t.Reference,
		ReleaseTitle: t.ReleaseTitle,
		ReleaseID:    t.ReleaseID.String(),
		StateName:    t.EffectiveState(),
		Email:        t.Email,
		Name:         t.Name,
		Phone:        t.PhoneNumber,
		Trigger:      trigger,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsSyncInProgress reports whether err is the held-flag rejection.
func IsSyncInProgress(err error) bool {
	return errors.Is(err, ErrSyncInProgress)
}
