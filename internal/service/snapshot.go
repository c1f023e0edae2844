package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"channelmirror/internal/domain"
)

// Snapshotter records the daily per-channel stats row: live subscriber
// count (cached count as fallback), trailing-24h post count and average
// views, and per-media-type totals. It only reads message history and
// appends snapshot rows, so it can run while a sync is in flight.
type Snapshotter struct {
	gateway   Gateway
	channels  ChannelStore
	messages  MessageStore
	snapshots SnapshotStore
	logger    *slog.Logger
}

func NewSnapshotter(
	gateway Gateway,
	channels ChannelStore,
	messages MessageStore,
	snapshots SnapshotStore,
	logger *slog.Logger,
) *Snapshotter {
	return &Snapshotter{
		gateway:   gateway,
		channels:  channels,
		messages:  messages,
		snapshots: snapshots,
		logger:    logger.With("component", "snapshotter"),
	}
}

// RecordAll appends one snapshot per approved channel. Per-channel
// failures are logged and skipped; the rest still get their row.
func (s *Snapshotter) RecordAll(ctx context.Context) error {
	channels, err := s.channels.ListApproved(ctx)
	if err != nil {
		return fmt.Errorf("list approved channels: %w", err)
	}

	if len(channels) == 0 {
		s.logger.Info("no approved channels for snapshot")
		return nil
	}

	s.logger.Info("recording snapshots", "channels", len(channels))

	for i := range channels {
		if err := s.record(ctx, &channels[i]); err != nil {
			s.logger.Error("failed to record snapshot",
				"channel_id", channels[i].ID,
				"title", channels[i].Title,
				"error", err,
			)
		}
	}

	return nil
}

func (s *Snapshotter) record(ctx context.Context, ch *domain.Channel) error {
	subscribers := s.liveSubscribers(ctx, ch)

	dayAgo := time.Now().UTC().Add(-24 * time.Hour)

	posts, err := s.messages.CountPostedSince(ctx, ch.ID, dayAgo)
	if err != nil {
		return fmt.Errorf("count posts: %w", err)
	}
	avgViews, err := s.messages.AvgViewsSince(ctx, ch.ID, dayAgo)
	if err != nil {
		return fmt.Errorf("avg views: %w", err)
	}
	photos, err := s.messages.CountByContentType(ctx, ch.ID, domain.ContentPhoto)
	if err != nil {
		return fmt.Errorf("count photos: %w", err)
	}
	videos, err := s.messages.CountByContentType(ctx, ch.ID, domain.ContentVideo)
	if err != nil {
		return fmt.Errorf("count videos: %w", err)
	}
	files, err := s.messages.CountByContentType(ctx, ch.ID, domain.ContentDocument)
	if err != nil {
		return fmt.Errorf("count files: %w", err)
	}
	links, err := s.messages.CountWithLinks(ctx, ch.ID)
	if err != nil {
		return fmt.Errorf("count links: %w", err)
	}

	snap := &domain.ChannelSnapshot{
		ChannelID:        ch.ID,
		SubscribersCount: subscribers,
		PostsCount:       posts,
		AvgViews:         avgViews,
		PhotosCount:      photos,
		VideosCount:      videos,
		FilesCount:       files,
		LinksCount:       links,
		RecordedAt:       time.Now().UTC(),
	}

	if err := s.snapshots.Insert(ctx, snap); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	s.logger.Info("snapshot recorded",
		"channel_id", ch.ID,
		"subscribers", subscribers,
		"posts_24h", posts,
	)
	return nil
}

// liveSubscribers tries the source for a fresh count and writes it back to
// the channel row on success. Any failure falls back to the cached count.
func (s *Snapshotter) liveSubscribers(ctx context.Context, ch *domain.Channel) int64 {
	entity, err := s.gateway.ResolveEntity(ctx, ch.Identifier())
	if err != nil {
		s.logger.Warn("could not resolve channel for enrichment, using cached count",
			"channel_id", ch.ID,
			"error", err,
		)
		return ch.SubscribersCount
	}

	info, err := s.gateway.ChannelInfo(ctx, entity)
	if err != nil {
		s.logger.Warn("could not fetch live channel info, using cached count",
			"channel_id", ch.ID,
			"error", err,
		)
		return ch.SubscribersCount
	}

	if err := s.channels.UpdateSubscribers(ctx, ch.ID, info.SubscribersCount); err != nil {
		s.logger.Warn("failed to cache subscriber count",
			"channel_id", ch.ID,
			"error", err,
		)
	}

	return info.SubscribersCount
}
