package service

import "context"

// WatermarkTracker computes the resume point for a channel's incremental
// sync: the highest external id already stored, 0 when the channel is
// empty. Backfill mode bypasses it entirely and relies on the pipeline's
// dedup key to absorb overlap.
type WatermarkTracker struct {
	messages MessageStore
}

func NewWatermarkTracker(messages MessageStore) *WatermarkTracker {
	return &WatermarkTracker{messages: messages}
}

func (w *WatermarkTracker) Resume(ctx context.Context, channelID int64) (int64, error) {
	return w.messages.MaxExternalID(ctx, channelID)
}
