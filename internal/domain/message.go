package domain

import "time"

const (
	ContentText     = "text"
	ContentPhoto    = "photo"
	ContentVideo    = "video"
	ContentVoice    = "voice"
	ContentDocument = "document"
	ContentSticker  = "sticker"
)

// Message is one mirrored channel post. The (ChannelID, TelegramMessageID)
// pair is the dedup key; content fields are immutable once stored, only
// the engagement counters move on re-ingestion.
type Message struct {
	ID                int64     `db:"id"`
	ChannelID         int64     `db:"channel_id"`
	TelegramMessageID int64     `db:"telegram_message_id"`
	ContentType       string    `db:"content_type"`
	TextContent       *string   `db:"text_content"`
	MediaURL          *string   `db:"media_url"`
	ViewsCount        int64     `db:"views_count"`
	ForwardsCount     int64     `db:"forwards_count"`
	RepliesCount      int64     `db:"replies_count"`
	ReactionsCount    int64     `db:"reactions_count"`
	HasLinks          bool      `db:"has_links"`
	PostedAt          *time.Time `db:"posted_at"`
	ScrapedAt         time.Time `db:"scraped_at"`
}

// EngagementCounters are the mutable fields of a stored message.
type EngagementCounters struct {
	Views     int64
	Forwards  int64
	Replies   int64
	Reactions int64
}

func (m *Message) Counters() EngagementCounters {
	return EngagementCounters{
		Views:     m.ViewsCount,
		Forwards:  m.ForwardsCount,
		Replies:   m.RepliesCount,
		Reactions: m.ReactionsCount,
	}
}
