package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"channelmirror/internal/domain"
)

type ChannelStore interface {
	ListApproved(ctx context.Context) ([]domain.Channel, error)
	GetByID(ctx context.Context, id int64) (*domain.Channel, error)
	UpdateSubscribers(ctx context.Context, id int64, count int64) error
}

type MessageStore interface {
	MaxExternalID(ctx context.Context, channelID int64) (int64, error)
	GetByExternalID(ctx context.Context, channelID, externalID int64) (*domain.Message, error)
	Insert(ctx context.Context, msg *domain.Message) (int64, error)
	UpdateCounters(ctx context.Context, channelID, externalID int64, c domain.EngagementCounters) error
	CountPostedSince(ctx context.Context, channelID int64, since time.Time) (int, error)
	AvgViewsSince(ctx context.Context, channelID int64, since time.Time) (float64, error)
	CountByContentType(ctx context.Context, channelID int64, contentType string) (int, error)
	CountWithLinks(ctx context.Context, channelID int64) (int, error)
}

type SnapshotStore interface {
	Insert(ctx context.Context, snap *domain.ChannelSnapshot) error
	ListRecent(ctx context.Context, channelID int64, limit int) ([]domain.ChannelSnapshot, error)
}

type Gateway interface {
	Connect(ctx context.Context) error
	ResolveEntity(ctx context.Context, identifier string) (*domain.Entity, error)
	ChannelInfo(ctx context.Context, entity *domain.Entity) (*domain.ChannelInfo, error)
	FetchRecent(ctx context.Context, entity *domain.Entity, limit int, sinceID int64) ([]domain.Message, error)
	StreamSince(ctx context.Context, entity *domain.Entity, since time.Time, batchSize int) (<-chan []domain.Message, <-chan error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, msg *domain.Message, isNew bool) error
	Close() error
}
