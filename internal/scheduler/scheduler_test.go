package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channelmirror/internal/domain"
)

type fakeSyncer struct {
	calls atomic.Int64
	err   error
}

func (f *fakeSyncer) TriggerIncremental(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

type fakeSnapshotter struct {
	calls atomic.Int64
}

func (f *fakeSnapshotter) RecordAll(ctx context.Context) error {
	f.calls.Add(1)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_TriggersOnInterval(t *testing.T) {
	syncer := &fakeSyncer{}
	sched := NewScheduler(syncer, &fakeSnapshotter{}, 20*time.Millisecond, 23, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()

	err := sched.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// One immediate trigger plus at least two ticks.
	assert.GreaterOrEqual(t, syncer.calls.Load(), int64(3))
}

func TestScheduler_SkipsWhileRunning(t *testing.T) {
	syncer := &fakeSyncer{err: domain.ErrSyncAlreadyRunning}
	sched := NewScheduler(syncer, &fakeSnapshotter{}, 20*time.Millisecond, 23, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	err := sched.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, syncer.calls.Load(), int64(2), "rejected triggers must not stop the ticker")
}

func TestNextSnapshot(t *testing.T) {
	sched := NewScheduler(&fakeSyncer{}, &fakeSnapshotter{}, time.Hour, 23, testLogger())

	before := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	next := sched.nextSnapshot(before)
	assert.Equal(t, time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC), next)

	after := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	next = sched.nextSnapshot(after)
	assert.Equal(t, time.Date(2024, 5, 2, 23, 0, 0, 0, time.UTC), next)

	exactly := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)
	next = sched.nextSnapshot(exactly)
	require.Equal(t, time.Date(2024, 5, 2, 23, 0, 0, 0, time.UTC), next, "the boundary itself rolls to the next day")
}
