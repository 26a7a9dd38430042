package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/lease"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/queue"
	"github.com/spec-kit/ticket-sync/internal/tito"
	mock_tito "github.com/spec-kit/ticket-sync/internal/tito/mock"
)

type syncFixture struct {
	source  *mock_tito.MockSource
	queue   *queue.RedisQueue
	flag    *lease.RedisLease
	store   *memStore
	svc     *SyncService
	worker  *queue.Worker
	metrics *observability.Metrics
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	_, client := newTestRedis(t)

	store := newMemStore()
	metrics := observability.NewMetrics()
	reconciler := NewReconciliationService(ReconciliationDependencies{
		UserRepo:   memUserRepo{store},
		TicketRepo: memTicketRepo{store},
		Locker:     newTestLocker(client),
		BcryptCost: 4,
		Metrics:    metrics,
	})
	source := mock_tito.NewMockSource(ctrl)
	q := queue.NewRedisQueue(client, "ticket-sync:queue")
	flag := lease.NewRedisLease(client, "ticket-sync:is_syncing")

	svc := NewSyncService(config.SyncConfig{PageSize: 5, FlagTTL: time.Minute}, SyncDependencies{
		Source:     source,
		Queue:      q,
		Flag:       flag,
		Reconciler: reconciler,
		QueueName:  "sync-tickets",
		Metrics:    metrics,
	})
	svc.sleep = func(context.Context, time.Duration) error { return nil }

	w := queue.NewWorker(q, config.QueueConfig{MaxAttempts: 3}, zap.NewNop(), metrics)
	w.Handle(queue.JobSyncPage, svc.HandlePageJob)
	w.Handle(queue.JobSyncComplete, svc.HandleCompleteJob)

	return &syncFixture{source: source, queue: q, flag: flag, store: store, svc: svc, worker: w, metrics: metrics}
}

func remoteTickets(from, n int) []tito.Ticket {
	out := make([]tito.Ticket, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, tito.Ticket{
			Reference:    fmt.Sprintf("REF-%d", i),
			ReleaseID:    "7",
			ReleaseTitle: "General",
			Email:        fmt.Sprintf("attendee%d@example.com", i),
			Name:         fmt.Sprintf("Attendee %d", i),
			State:        "complete",
		})
	}
	return out
}

func intPtr(v int) *int { return &v }

// drain runs every queued job and returns their types in order.
func (f *syncFixture) drain(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()
	var types []string
	for {
		job, err := f.queue.Dequeue(ctx, "sync-tickets", 50*time.Millisecond)
		require.NoError(t, err)
		if job == nil {
			return types
		}
		types = append(types, job.Type)
		f.worker.Process(ctx, "sync-tickets", job)
	}
}

func (f *syncFixture) held(t *testing.T) bool {
	t.Helper()
	held, err := f.flag.IsHeld(context.Background())
	require.NoError(t, err)
	return held
}

func TestRunFullSyncQueuesPagesAndCompletionMarker(t *testing.T) {
	f := newSyncFixture(t)

	gomock.InOrder(
		f.source.EXPECT().FetchTickets(gomock.Any(), tito.TicketQuery{
			Sort: "created_at", Direction: "asc", Page: 1, PageSize: 5, View: "short",
		}).Return(&tito.TicketPage{Tickets: remoteTickets(1, 5), Meta: tito.Meta{NextPage: intPtr(2), TotalPages: 2}}, nil),
		f.source.EXPECT().FetchTickets(gomock.Any(), gomock.Any()).
			Return(&tito.TicketPage{Meta: tito.Meta{TotalPages: 2}}, nil),
	)

	summary := f.svc.RunFullSync(context.Background())
	assert.False(t, summary.Skipped)
	assert.Equal(t, 1, summary.PagesQueued)
	assert.Equal(t, 5, summary.TicketsQueued)
	assert.True(t, summary.MarkerQueued)
	assert.Empty(t, summary.Error)

	require.NoError(t, f.flag.Release(context.Background()))
	_, err := f.flag.Acquire(context.Background(), time.Minute)
	require.NoError(t, err)

	assert.Equal(t, []string{queue.JobSyncPage, queue.JobSyncComplete}, f.drain(t))
	assert.Len(t, f.store.liveTickets(), 5)
	assert.Equal(t, 5, f.store.userCount())
	assert.False(t, f.held(t), "completion marker clears the flag")
	assert.Equal(t, int64(1), f.metrics.Snapshot().SyncRuns["ok"])
}

func TestRunFullSyncMarksFinalPage(t *testing.T) {
	f := newSyncFixture(t)

	gomock.InOrder(
		f.source.EXPECT().FetchTickets(gomock.Any(), gomock.Any()).
			Return(&tito.TicketPage{Tickets: remoteTickets(1, 5), Meta: tito.Meta{NextPage: intPtr(2), TotalPages: 2}}, nil),
		f.source.EXPECT().FetchTickets(gomock.Any(), gomock.Any()).
			Return(&tito.TicketPage{Tickets: remoteTickets(6, 2), Meta: tito.Meta{TotalPages: 2}}, nil),
	)

	summary := f.svc.RunFullSync(context.Background())
	assert.Equal(t, 2, summary.PagesQueued)
	assert.Equal(t, 7, summary.TicketsQueued)
	assert.False(t, summary.MarkerQueued)

	assert.Equal(t, []string{queue.JobSyncPage, queue.JobSyncPage}, f.drain(t))
	assert.Len(t, f.store.liveTickets(), 7)
	assert.False(t, f.held(t))
}

func TestRunFullSyncSkipsWhenFlagHeld(t *testing.T) {
	f := newSyncFixture(t)
	ok, err := f.flag.Acquire(context.Background(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	summary := f.svc.RunFullSync(context.Background())
	assert.True(t, summary.Skipped)
	assert.True(t, f.held(t), "a skipped run leaves the other holder's flag alone")
	assert.Empty(t, f.drain(t))
}

func TestRunFullSyncStopsOnRemoteError(t *testing.T) {
	f := newSyncFixture(t)
	f.source.EXPECT().FetchTickets(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	summary := f.svc.RunFullSync(context.Background())
	assert.Equal(t, "boom", summary.Error)
	assert.Zero(t, summary.PagesQueued)
	assert.False(t, summary.MarkerQueued)
	assert.False(t, f.held(t))
	assert.Empty(t, f.drain(t))
	assert.Equal(t, int64(1), f.metrics.Snapshot().SyncRuns["error"])
}

func TestRunFullSyncEmptyFirstPage(t *testing.T) {
	f := newSyncFixture(t)
	f.source.EXPECT().FetchTickets(gomock.Any(), gomock.Any()).Return(&tito.TicketPage{}, nil)

	summary := f.svc.RunFullSync(context.Background())
	assert.NotEmpty(t, summary.Error)
	assert.Empty(t, f.drain(t))
}

func TestHandlePageJobContinuesPastBadTickets(t *testing.T) {
	f := newSyncFixture(t)
	tickets := remoteTickets(1, 3)
	tickets[1].Email = ""

	job, err := queue.NewJob(queue.JobSyncPage, SyncPagePayload{Page: 1, Tickets: tickets})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandlePageJob(context.Background(), &job))
	assert.Len(t, f.store.liveTickets(), 2)
}

func TestTriggerAsyncRejectsWhileSyncing(t *testing.T) {
	f := newSyncFixture(t)
	_, err := f.flag.Acquire(context.Background(), time.Minute)
	require.NoError(t, err)

	err = f.svc.TriggerAsync(context.Background())
	assert.True(t, IsSyncInProgress(err))
}
