package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"channelmirror/internal/domain"
)

type SnapshotStore struct {
	db *sqlx.DB
}

func NewSnapshotStore(db *sqlx.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Insert appends one snapshot row. Snapshots are never updated.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.ChannelSnapshot) error {
	query := `
		INSERT INTO channel_stats (
			channel_id, subscribers_count, posts_count, avg_views,
			photos_count, videos_count, files_count, links_count, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := s.db.ExecContext(ctx, query,
		snap.ChannelID,
		snap.SubscribersCount,
		snap.PostsCount,
		snap.AvgViews,
		snap.PhotosCount,
		snap.VideosCount,
		snap.FilesCount,
		snap.LinksCount,
		snap.RecordedAt,
	)
	return err
}

// ListRecent returns up to limit snapshots for a channel, newest first.
func (s *SnapshotStore) ListRecent(ctx context.Context, channelID int64, limit int) ([]domain.ChannelSnapshot, error) {
	query := `
		SELECT id, channel_id, subscribers_count, posts_count, avg_views,
		       photos_count, videos_count, files_count, links_count, recorded_at
		FROM channel_stats
		WHERE channel_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`

	var snapshots []domain.ChannelSnapshot
	err := s.db.SelectContext(ctx, &snapshots, query, channelID, limit)
	return snapshots, err
}
