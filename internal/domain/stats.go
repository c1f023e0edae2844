package domain

import "time"

// ChannelSnapshot is an append-only point-in-time record of a channel's
// audience and daily output. Rows are never updated after insert; the
// newest row is authoritative for the current subscriber count.
type ChannelSnapshot struct {
	ID               int64     `db:"id"`
	ChannelID        int64     `db:"channel_id"`
	SubscribersCount int64     `db:"subscribers_count"`
	PostsCount       int       `db:"posts_count"`
	AvgViews         float64   `db:"avg_views"`
	PhotosCount      int       `db:"photos_count"`
	VideosCount      int       `db:"videos_count"`
	FilesCount       int       `db:"files_count"`
	LinksCount       int       `db:"links_count"`
	RecordedAt       time.Time `db:"recorded_at"`
}

// GrowthWindow is one derived growth figure over a trailing window.
type GrowthWindow struct {
	Label   string  `json:"label"`
	Growth  int64   `json:"growth"`
	Percent float64 `json:"percent"`
}

// GrowthReport is the derived growth view over a channel's snapshot series.
type GrowthReport struct {
	ChannelID     int64          `json:"channel_id"`
	CurrentCount  int64          `json:"current_count"`
	Windows       []GrowthWindow `json:"windows"`
	Sparkline     []int64        `json:"sparkline"`
	AvgDailyDelta int64          `json:"avg_daily_delta"`
}
