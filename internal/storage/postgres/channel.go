package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"channelmirror/internal/domain"
)

type ChannelStore struct {
	db *sqlx.DB
}

func NewChannelStore(db *sqlx.DB) *ChannelStore {
	return &ChannelStore{db: db}
}

func (s *ChannelStore) ListApproved(ctx context.Context) ([]domain.Channel, error) {
	query := `
		SELECT id, telegram_id, username, title, description, subscribers_count,
		       is_verified, status, discovered_at, approved_at, created_at, updated_at
		FROM channels
		WHERE status = $1
		ORDER BY approved_at`

	var channels []domain.Channel
	err := s.db.SelectContext(ctx, &channels, query, domain.ChannelApproved)
	return channels, err
}

func (s *ChannelStore) GetByID(ctx context.Context, id int64) (*domain.Channel, error) {
	query := `
		SELECT id, telegram_id, username, title, description, subscribers_count,
		       is_verified, status, discovered_at, approved_at, created_at, updated_at
		FROM channels
		WHERE id = $1`

	var channel domain.Channel
	err := s.db.GetContext(ctx, &channel, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// UpdateSubscribers writes back the live subscriber count fetched during
// enrichment. Status and the other approval-owned fields are not touched.
func (s *ChannelStore) UpdateSubscribers(ctx context.Context, id int64, count int64) error {
	query := `
		UPDATE channels
		SET subscribers_count = $2, updated_at = NOW()
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query, id, count)
	return err
}
