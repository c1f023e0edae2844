package domain

import "time"

type RunStatus string

const (
	RunIdle       RunStatus = "idle"
	RunInProgress RunStatus = "in_progress"
	RunDone       RunStatus = "done"
	RunError      RunStatus = "error"
)

type ChannelSyncStatus string

const (
	ChannelSyncPending    ChannelSyncStatus = "pending"
	ChannelSyncInProgress ChannelSyncStatus = "in_progress"
	ChannelSyncDone       ChannelSyncStatus = "done"
	ChannelSyncError      ChannelSyncStatus = "error"
)

type SyncMode string

const (
	ModeIncremental SyncMode = "incremental"
	ModeBackfill    SyncMode = "backfill"
)

// ChannelProgress tracks one channel's share of a sync run.
type ChannelProgress struct {
	ChannelID int64             `json:"channel_id"`
	Title     string            `json:"title"`
	Status    ChannelSyncStatus `json:"status"`
	Scraped   int               `json:"scraped"`
	New       int               `json:"new"`
	Updated   int               `json:"updated"`
	Error     string            `json:"error,omitempty"`
}

// SyncRun is the in-memory record of the currently executing or last
// completed sync. It is replaced wholesale by the next triggered run.
type SyncRun struct {
	Status     RunStatus         `json:"status"`
	Mode       SyncMode          `json:"mode,omitempty"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Channels   []ChannelProgress `json:"channels,omitempty"`
}

// Totals sums the per-channel counters of the run.
func (r *SyncRun) Totals() (scraped, newCount, updated int) {
	for _, c := range r.Channels {
		scraped += c.Scraped
		newCount += c.New
		updated += c.Updated
	}
	return
}

// BatchResult is the counting contract one ingested batch reports back.
type BatchResult struct {
	Scraped int
	New     int
	Updated int
}
