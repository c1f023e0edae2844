package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"channelmirror/internal/domain"
)

// Syncer triggers a background sync run.
type Syncer interface {
	TriggerIncremental(ctx context.Context) error
}

// Snapshotter records daily stats for every tracked channel.
type Snapshotter interface {
	RecordAll(ctx context.Context) error
}

type Scheduler struct {
	syncer       Syncer
	snapshotter  Snapshotter
	interval     time.Duration
	snapshotHour int
	logger       *slog.Logger
}

func NewScheduler(syncer Syncer, snapshotter Snapshotter, interval time.Duration, snapshotHour int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:       syncer,
		snapshotter:  snapshotter,
		interval:     interval,
		snapshotHour: snapshotHour,
		logger:       logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "snapshot_hour", s.snapshotHour)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	snapshotTimer := time.NewTimer(time.Until(s.nextSnapshot(time.Now().UTC())))
	defer snapshotTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		case <-snapshotTimer.C:
			s.runSnapshot(ctx)
			snapshotTimer.Reset(time.Until(s.nextSnapshot(time.Now().UTC())))
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	defer s.recoverJob("sync")
	if err := s.syncer.TriggerIncremental(ctx); err != nil {
		if errors.Is(err, domain.ErrSyncAlreadyRunning) {
			s.logger.Warn("sync still running, skipping tick")
			return
		}
		s.logger.Error("sync trigger failed", "error", err)
		sentry.CaptureException(err)
	}
}

func (s *Scheduler) runSnapshot(ctx context.Context) {
	defer s.recoverJob("stats snapshot")

	snapCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	if err := s.snapshotter.RecordAll(snapCtx); err != nil {
		s.logger.Error("stats snapshot failed", "error", err)
		sentry.CaptureException(err)
	}
}

// recoverJob keeps a panicking job from taking the scheduler loop down.
func (s *Scheduler) recoverJob(job string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("%s job panic: %v", job, r)
		s.logger.Error("scheduled job panicked", "job", job, "error", err)
		sentry.CaptureException(err)
	}
}

// nextSnapshot returns the next occurrence of the configured hour, UTC.
func (s *Scheduler) nextSnapshot(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.snapshotHour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
