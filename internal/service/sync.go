package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sentry "github.com/getsentry/sentry-go"

	"channelmirror/internal/config"
	"channelmirror/internal/domain"
)

// Mirror drives sync runs: it gates them through the Tracker, walks the
// approved channels sequentially and feeds fetched batches through the
// ingestion pipeline.
type Mirror struct {
	gateway    Gateway
	channels   ChannelStore
	pipeline   *Pipeline
	watermarks *WatermarkTracker
	tracker    *Tracker
	logger     *slog.Logger
	cfg        config.SyncConfig
}

func NewMirror(
	gateway Gateway,
	channels ChannelStore,
	pipeline *Pipeline,
	watermarks *WatermarkTracker,
	tracker *Tracker,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *Mirror {
	return &Mirror{
		gateway:    gateway,
		channels:   channels,
		pipeline:   pipeline,
		watermarks: watermarks,
		tracker:    tracker,
		logger:     logger.With("component", "mirror"),
		cfg:        cfg,
	}
}

// TriggerIncremental starts an incremental run on a background goroutine.
// Returns domain.ErrSyncAlreadyRunning when a run is in progress; the
// caller gets the answer immediately either way.
func (m *Mirror) TriggerIncremental(ctx context.Context) error {
	if !m.tracker.TryStart(domain.ModeIncremental) {
		return domain.ErrSyncAlreadyRunning
	}
	go m.run(context.WithoutCancel(ctx), domain.ModeIncremental, time.Time{})
	return nil
}

// TriggerBackfill starts a date-bounded full historical run.
func (m *Mirror) TriggerBackfill(ctx context.Context, since time.Time) error {
	if !m.tracker.TryStart(domain.ModeBackfill) {
		return domain.ErrSyncAlreadyRunning
	}
	go m.run(context.WithoutCancel(ctx), domain.ModeBackfill, since)
	return nil
}

// Progress returns a snapshot of the current or last completed run.
func (m *Mirror) Progress() domain.SyncRun {
	return m.tracker.Snapshot()
}

func (m *Mirror) run(ctx context.Context, mode domain.SyncMode, since time.Time) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("sync run panic: %v", r)
			sentry.CaptureException(err)
			m.logger.Error("sync run panicked", "error", err)
			m.tracker.Fail(err.Error())
		}
	}()

	startTime := time.Now()
	m.logger.Info("starting sync run", "mode", mode)

	if err := m.gateway.Connect(ctx); err != nil {
		sentry.CaptureException(err)
		m.logger.Error("cannot connect to source", "error", err)
		m.tracker.Fail(err.Error())
		return
	}

	channels, err := m.channels.ListApproved(ctx)
	if err != nil {
		sentry.CaptureException(err)
		m.logger.Error("failed to list approved channels", "error", err)
		m.tracker.Fail(err.Error())
		return
	}

	if len(channels) == 0 {
		m.logger.Info("no approved channels to sync")
		m.tracker.Finish()
		return
	}

	m.tracker.SetChannels(channels)

	// One channel at a time: a single outstanding request stream keeps
	// load on the rate-limited source bounded.
	for i := range channels {
		m.syncChannel(ctx, &channels[i], mode, since)
	}

	m.tracker.Finish()

	run := m.tracker.Snapshot()
	scraped, newCount, updated := run.Totals()
	m.logger.Info("sync run completed",
		"mode", mode,
		"channels", len(channels),
		"scraped", scraped,
		"new", newCount,
		"updated", updated,
		"duration", time.Since(startTime),
	)
}

func (m *Mirror) syncChannel(ctx context.Context, ch *domain.Channel, mode domain.SyncMode, since time.Time) {
	m.tracker.StartChannel(ch.ID)
	logger := m.logger.With("channel_id", ch.ID, "title", ch.Title)

	entity, err := m.gateway.ResolveEntity(ctx, ch.Identifier())
	if err != nil {
		logger.Error("failed to resolve channel entity", "error", err)
		m.tracker.FailChannel(ch.ID, err.Error())
		return
	}

	switch mode {
	case domain.ModeBackfill:
		err = m.backfillChannel(ctx, ch, entity, since, logger)
	default:
		err = m.incrementalChannel(ctx, ch, entity, logger)
	}
	if err != nil {
		logger.Error("channel sync failed", "mode", mode, "error", err)
		m.tracker.FailChannel(ch.ID, err.Error())
		return
	}

	m.tracker.FinishChannel(ch.ID)
}

func (m *Mirror) incrementalChannel(ctx context.Context, ch *domain.Channel, entity *domain.Entity, logger *slog.Logger) error {
	watermark, err := m.watermarks.Resume(ctx, ch.ID)
	if err != nil {
		return fmt.Errorf("compute watermark: %w", err)
	}

	records, err := m.gateway.FetchRecent(ctx, entity, m.cfg.MaxMessagesPerSync, watermark)
	if err != nil {
		return fmt.Errorf("fetch recent: %w", err)
	}

	for _, batch := range chunk(records, m.cfg.BatchSize) {
		m.ingest(ctx, ch.ID, batch, logger)
	}

	return nil
}

func (m *Mirror) backfillChannel(ctx context.Context, ch *domain.Channel, entity *domain.Entity, since time.Time, logger *slog.Logger) error {
	batches, errc := m.gateway.StreamSince(ctx, entity, since, m.cfg.BatchSize)

	for batch := range batches {
		m.ingest(ctx, ch.ID, batch, logger)
	}

	if err := <-errc; err != nil {
		return fmt.Errorf("stream since %s: %w", since.Format(time.DateOnly), err)
	}
	return nil
}

// ingest commits one batch. A failed batch is logged and dropped; later
// batches still land, so one bad batch never aborts the channel.
func (m *Mirror) ingest(ctx context.Context, channelID int64, batch []domain.Message, logger *slog.Logger) {
	res, err := m.pipeline.IngestBatch(ctx, channelID, batch)
	if err != nil {
		logger.Error("batch ingestion failed",
			"batch_size", len(batch),
			"error", err,
		)
		return
	}
	m.tracker.AddBatch(channelID, res)
}

func chunk(records []domain.Message, size int) [][]domain.Message {
	if size <= 0 {
		size = len(records)
	}
	var batches [][]domain.Message
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}
