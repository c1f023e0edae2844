package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"channelmirror/internal/domain"
)

// Pipeline converts batches of source records into persisted state under
// the (channel, external id) dedup invariant.
type Pipeline struct {
	messages  MessageStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
}

func NewPipeline(
	messages MessageStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		messages:  messages,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("component", "pipeline"),
	}
}

type ingested struct {
	msg   domain.Message
	isNew bool
}

// IngestBatch persists one batch in a single transaction. Existing rows get
// only their engagement counters refreshed; new rows are inserted whole with
// the ingestion wall-clock as scraped_at. On error the whole batch rolls
// back and the zero result is returned, so counters reflect committed
// batches only.
func (p *Pipeline) IngestBatch(ctx context.Context, channelID int64, batch []domain.Message) (domain.BatchResult, error) {
	if len(batch) == 0 {
		return domain.BatchResult{}, nil
	}

	res := domain.BatchResult{Scraped: len(batch)}
	saved := make([]ingested, 0, len(batch))

	err := p.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for i := range batch {
			rec := batch[i]
			rec.ChannelID = channelID

			existing, err := p.messages.GetByExternalID(txCtx, channelID, rec.TelegramMessageID)
			if err != nil {
				return fmt.Errorf("lookup message %d: %w", rec.TelegramMessageID, err)
			}

			if existing != nil {
				if err := p.messages.UpdateCounters(txCtx, channelID, rec.TelegramMessageID, rec.Counters()); err != nil {
					return fmt.Errorf("update counters for %d: %w", rec.TelegramMessageID, err)
				}
				res.Updated++
				saved = append(saved, ingested{msg: rec, isNew: false})
				continue
			}

			rec.ScrapedAt = time.Now().UTC()
			if _, err := p.messages.Insert(txCtx, &rec); err != nil {
				return fmt.Errorf("insert message %d: %w", rec.TelegramMessageID, err)
			}
			res.New++
			saved = append(saved, ingested{msg: rec, isNew: true})
		}
		return nil
	})
	if err != nil {
		return domain.BatchResult{}, err
	}

	p.publish(ctx, saved)

	return res, nil
}

// publish emits events for committed records. Best-effort: a broker
// failure never fails an already-committed batch.
func (p *Pipeline) publish(ctx context.Context, saved []ingested) {
	if p.publisher == nil {
		return
	}
	for i := range saved {
		if err := p.publisher.Publish(ctx, &saved[i].msg, saved[i].isNew); err != nil {
			p.logger.Warn("failed to publish message event",
				"external_id", saved[i].msg.TelegramMessageID,
				"error", err,
			)
		}
	}
}
