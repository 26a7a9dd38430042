package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ticket-sync/internal/service"
)

type countingRunner struct {
	runs atomic.Int32
	err  string
}

func (r *countingRunner) RunFullSync(ctx context.Context) service.SyncSummary {
	r.runs.Add(1)
	return service.SyncSummary{PagesQueued: 1, Error: r.err}
}

func TestRunSyncScheduleRunsOnStartAndOnTick(t *testing.T) {
	runner := &countingRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSyncSchedule(ctx, runner, 20*time.Millisecond, true, zap.NewNop())
		close(done)
	}()

	assert.Eventually(t, func() bool { return runner.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestRunSyncScheduleWaitsForFirstTick(t *testing.T) {
	runner := &countingRunner{}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	RunSyncSchedule(ctx, runner, time.Hour, false, zap.NewNop())
	assert.Equal(t, int32(0), runner.runs.Load())
}

func TestScheduledSyncLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	runScheduledSync(context.Background(), &countingRunner{err: "remote down"}, zap.New(core))

	entries := logs.FilterMessage("scheduled sync failed").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "remote down", entries[0].ContextMap()["error"])
	}
}
