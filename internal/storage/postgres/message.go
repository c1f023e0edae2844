package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"channelmirror/internal/domain"
)

type MessageStore struct {
	db *sqlx.DB
}

func NewMessageStore(db *sqlx.DB) *MessageStore {
	return &MessageStore{db: db}
}

// MaxExternalID returns the incremental-sync watermark for a channel:
// the highest telegram_message_id stored, or 0 when none.
func (s *MessageStore) MaxExternalID(ctx context.Context, channelID int64) (int64, error) {
	query := `SELECT COALESCE(MAX(telegram_message_id), 0) FROM messages WHERE channel_id = $1`

	var maxID int64
	err := s.db.GetContext(ctx, &maxID, query, channelID)
	return maxID, err
}

func (s *MessageStore) GetByExternalID(ctx context.Context, channelID, externalID int64) (*domain.Message, error) {
	query := `
		SELECT id, channel_id, telegram_message_id, content_type, text_content,
		       media_url, views_count, forwards_count, replies_count,
		       reactions_count, has_links, posted_at, scraped_at
		FROM messages
		WHERE channel_id = $1 AND telegram_message_id = $2`

	ex := GetExecutor(ctx, s.db)

	var msg domain.Message
	err := sqlx.GetContext(ctx, ex, &msg, query, channelID, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) Insert(ctx context.Context, msg *domain.Message) (int64, error) {
	query := `
		INSERT INTO messages (
			channel_id, telegram_message_id, content_type, text_content,
			media_url, views_count, forwards_count, replies_count,
			reactions_count, has_links, posted_at, scraped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		RETURNING id`

	ex := GetExecutor(ctx, s.db)

	var id int64
	err := ex.QueryRowxContext(ctx, query,
		msg.ChannelID,
		msg.TelegramMessageID,
		msg.ContentType,
		msg.TextContent,
		msg.MediaURL,
		msg.ViewsCount,
		msg.ForwardsCount,
		msg.RepliesCount,
		msg.ReactionsCount,
		msg.HasLinks,
		msg.PostedAt,
		msg.ScrapedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateCounters refreshes only the mutable engagement fields. Content
// columns are deliberately absent from the SET list: the source may return
// edited or redacted views on re-fetch, and the stored original wins.
func (s *MessageStore) UpdateCounters(ctx context.Context, channelID, externalID int64, c domain.EngagementCounters) error {
	query := `
		UPDATE messages
		SET views_count = $3,
		    forwards_count = $4,
		    replies_count = $5,
		    reactions_count = $6
		WHERE channel_id = $1 AND telegram_message_id = $2`

	ex := GetExecutor(ctx, s.db)

	_, err := ex.ExecContext(ctx, query, channelID, externalID,
		c.Views, c.Forwards, c.Replies, c.Reactions)
	return err
}

func (s *MessageStore) CountPostedSince(ctx context.Context, channelID int64, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE channel_id = $1 AND posted_at >= $2`

	var count int
	err := s.db.GetContext(ctx, &count, query, channelID, since)
	return count, err
}

func (s *MessageStore) AvgViewsSince(ctx context.Context, channelID int64, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(AVG(views_count), 0)
		FROM messages
		WHERE channel_id = $1 AND posted_at >= $2`

	var avg float64
	err := s.db.GetContext(ctx, &avg, query, channelID, since)
	return avg, err
}

func (s *MessageStore) CountByContentType(ctx context.Context, channelID int64, contentType string) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE channel_id = $1 AND content_type = $2`

	var count int
	err := s.db.GetContext(ctx, &count, query, channelID, contentType)
	return count, err
}

func (s *MessageStore) CountWithLinks(ctx context.Context, channelID int64) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE channel_id = $1 AND has_links`

	var count int
	err := s.db.GetContext(ctx, &count, query, channelID)
	return count, err
}
