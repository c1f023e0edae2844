//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"channelmirror/internal/domain"
	"channelmirror/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_channels.up.sql"),
			filepath.Join(migrationsPath, "002_create_messages.up.sql"),
			filepath.Join(migrationsPath, "003_create_channel_stats.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM channel_stats")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM messages")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM channels")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) insertChannel(telegramID int64, status domain.ChannelStatus) int64 {
	var id int64
	err := s.db.QueryRowxContext(s.ctx, `
		INSERT INTO channels (telegram_id, username, title, status, approved_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id
	`, telegramID, "chan"+string(status), "Channel", status).Scan(&id)
	s.Require().NoError(err)
	return id
}

func (s *PostgresIntegrationSuite) TestChannelStore_ListApproved() {
	store := NewChannelStore(s.db)

	s.insertChannel(100, domain.ChannelApproved)
	s.insertChannel(200, domain.ChannelPending)
	s.insertChannel(300, domain.ChannelApproved)
	s.insertChannel(400, domain.ChannelRejected)

	channels, err := store.ListApproved(s.ctx)
	s.NoError(err)
	s.Len(channels, 2)
	for _, ch := range channels {
		s.Equal(domain.ChannelApproved, ch.Status)
	}
}

func (s *PostgresIntegrationSuite) TestChannelStore_GetByID_NotFound() {
	store := NewChannelStore(s.db)

	_, err := store.GetByID(s.ctx, 999999)
	s.ErrorIs(err, domain.ErrChannelNotFound)
}

func (s *PostgresIntegrationSuite) TestChannelStore_UpdateSubscribers() {
	store := NewChannelStore(s.db)
	id := s.insertChannel(100, domain.ChannelApproved)

	err := store.UpdateSubscribers(s.ctx, id, 5000)
	s.NoError(err)

	ch, err := store.GetByID(s.ctx, id)
	s.NoError(err)
	s.Equal(int64(5000), ch.SubscribersCount)
	s.Equal(domain.ChannelApproved, ch.Status, "status must not change")
}

func (s *PostgresIntegrationSuite) TestMessageStore_InsertAndGet() {
	store := NewMessageStore(s.db)
	channelID := s.insertChannel(100, domain.ChannelApproved)
	now := time.Now().UTC().Truncate(time.Microsecond)

	msg := &domain.Message{
		ChannelID:         channelID,
		TelegramMessageID: 501,
		ContentType:       domain.ContentPhoto,
		TextContent:       utils.Ptr("caption"),
		MediaURL:          utils.Ptr("https://example.com/p.jpg"),
		ViewsCount:        10,
		HasLinks:          true,
		PostedAt:          &now,
		ScrapedAt:         now,
	}

	id, err := store.Insert(s.ctx, msg)
	s.NoError(err)
	s.Greater(id, int64(0))

	got, err := store.GetByExternalID(s.ctx, channelID, 501)
	s.NoError(err)
	s.Require().NotNil(got)
	s.Equal(domain.ContentPhoto, got.ContentType)
	s.Equal("caption", *got.TextContent)
	s.True(got.HasLinks)
}

func (s *PostgresIntegrationSuite) TestMessageStore_GetMissingReturnsNil() {
	store := NewMessageStore(s.db)
	channelID := s.insertChannel(100, domain.ChannelApproved)

	got, err := store.GetByExternalID(s.ctx, channelID, 12345)
	s.NoError(err)
	s.Nil(got)
}

func (s *PostgresIntegrationSuite) TestMessageStore_DuplicateInsertRejected() {
	store := NewMessageStore(s.db)
	channelID := s.insertChannel(100, domain.ChannelApproved)

	msg := &domain.Message{
		ChannelID:         channelID,
		TelegramMessageID: 501,
		ContentType:       domain.ContentText,
		ScrapedAt:         time.Now().UTC(),
	}
	_, err := store.Insert(s.ctx, msg)
	s.NoError(err)

	_, err = store.Insert(s.ctx, msg)
	s.Error(err, "unique (channel_id, telegram_message_id) holds")
}

func (s *PostgresIntegrationSuite) TestMessageStore_MaxExternalID() {
	store := NewMessageStore(s.db)
	channelID := s.insertChannel(100, domain.ChannelApproved)

	watermark, err := store.MaxExternalID(s.ctx, channelID)
	s.NoError(err)
	s.Equal(int64(0), watermark, "empty channel starts at zero")

	for _, extID := range []int64{501, 502, 505} {
		_, err := store.Insert(s.ctx, &domain.Message{
			ChannelID:         channelID,
			TelegramMessageID: extID,
			ContentType:       domain.ContentText,
			ScrapedAt:         time.Now().UTC(),
		})
		s.NoError(err)
	}

	watermark, err = store.MaxExternalID(s.ctx, channelID)
	s.NoError(err)
	s.Equal(int64(505), watermark)
}

func (s *PostgresIntegrationSuite) TestMessageStore_UpdateCountersLeavesContent() {
	store := NewMessageStore(s.db)
	channelID := s.insertChannel(100, domain.ChannelApproved)

	_, err := store.Insert(s.ctx, &domain.Message{
		ChannelID:         channelID,
		TelegramMessageID: 501,
		ContentType:       domain.ContentText,
		TextContent:       utils.Ptr("original"),
		ViewsCount:        1,
		ScrapedAt:         time.Now().UTC(),
	})
	s.NoError(err)

	err = store.UpdateCounters(s.ctx, channelID, 501, domain.EngagementCounters{
		Views:    100,
		Forwards: 5,
		Replies:  2,
	})
	s.NoError(err)

	got, err := store.GetByExternalID(s.ctx, channelID, 501)
	s.NoError(err)
	s.Equal(int64(100), got.ViewsCount)
	s.Equal(int64(5), got.ForwardsCount)
	s.Equal("original", *got.TextContent, "content is immutable after first scrape")
}

func (s *PostgresIntegrationSuite) TestMessageStore_StatsQueries() {
	store := NewMessageStore(s.db)
	channelID := s.insertChannel(100, domain.ChannelApproved)
	now := time.Now().UTC()
	recent := now.Add(-time.Hour)
	old := now.Add(-48 * time.Hour)

	rows := []struct {
		extID       int64
		contentType string
		postedAt    time.Time
		views       int64
		hasLinks    bool
	}{
		{501, domain.ContentText, recent, 100, true},
		{502, domain.ContentPhoto, recent, 200, false},
		{503, domain.ContentVideo, old, 50, true},
		{504, domain.ContentDocument, old, 10, false},
	}
	for _, r := range rows {
		postedAt := r.postedAt
		_, err := store.Insert(s.ctx, &domain.Message{
			ChannelID:         channelID,
			TelegramMessageID: r.extID,
			ContentType:       r.contentType,
			ViewsCount:        r.views,
			HasLinks:          r.hasLinks,
			PostedAt:          &postedAt,
			ScrapedAt:         now,
		})
		s.NoError(err)
	}

	dayAgo := now.Add(-24 * time.Hour)

	posted, err := store.CountPostedSince(s.ctx, channelID, dayAgo)
	s.NoError(err)
	s.Equal(2, posted)

	avg, err := store.AvgViewsSince(s.ctx, channelID, dayAgo)
	s.NoError(err)
	s.InDelta(150.0, avg, 0.001)

	photos, err := store.CountByContentType(s.ctx, channelID, domain.ContentPhoto)
	s.NoError(err)
	s.Equal(1, photos)

	links, err := store.CountWithLinks(s.ctx, channelID)
	s.NoError(err)
	s.Equal(2, links)
}

func (s *PostgresIntegrationSuite) TestSnapshotStore_InsertAndListRecent() {
	store := NewSnapshotStore(s.db)
	channelID := s.insertChannel(100, domain.ChannelApproved)
	now := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 3; i++ {
		err := store.Insert(s.ctx, &domain.ChannelSnapshot{
			ChannelID:        channelID,
			SubscribersCount: int64(1000 + i*10),
			PostsCount:       i,
			AvgViews:         float64(i) * 1.5,
			RecordedAt:       now.Add(time.Duration(-i) * 24 * time.Hour),
		})
		s.NoError(err)
	}

	snapshots, err := store.ListRecent(s.ctx, channelID, 2)
	s.NoError(err)
	s.Require().Len(snapshots, 2)
	s.Equal(int64(1000), snapshots[0].SubscribersCount, "newest first")
	s.Equal(int64(1010), snapshots[1].SubscribersCount)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	store := NewMessageStore(s.db)
	channelID := s.insertChannel(100, domain.ChannelApproved)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		_, err := store.Insert(ctx, &domain.Message{
			ChannelID:         channelID,
			TelegramMessageID: 501,
			ContentType:       domain.ContentText,
			ScrapedAt:         time.Now().UTC(),
		})
		return err
	})
	s.NoError(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM messages WHERE telegram_message_id = $1", 501)
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	store := NewMessageStore(s.db)
	channelID := s.insertChannel(100, domain.ChannelApproved)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		_, err := store.Insert(ctx, &domain.Message{
			ChannelID:         channelID,
			TelegramMessageID: 502,
			ContentType:       domain.ContentText,
			ScrapedAt:         time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM messages WHERE telegram_message_id = $1", 502)
	s.NoError(err)
	s.Equal(0, count)
}
