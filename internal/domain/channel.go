package domain

import (
	"strconv"
	"time"
)

type ChannelStatus string

const (
	ChannelPending  ChannelStatus = "pending"
	ChannelApproved ChannelStatus = "approved"
	ChannelRejected ChannelStatus = "rejected"
	ChannelPaused   ChannelStatus = "paused"
)

// Channel is a mirrored messaging channel. The approval workflow owns the
// lifecycle status; the sync core only reads approved rows and writes
// SubscribersCount back during enrichment.
type Channel struct {
	ID               int64         `db:"id"`
	TelegramID       int64         `db:"telegram_id"`
	Username         *string       `db:"username"`
	Title            string        `db:"title"`
	Description      *string       `db:"description"`
	SubscribersCount int64         `db:"subscribers_count"`
	IsVerified       bool          `db:"is_verified"`
	Status           ChannelStatus `db:"status"`
	DiscoveredAt     time.Time     `db:"discovered_at"`
	ApprovedAt       *time.Time    `db:"approved_at"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

// Identifier returns the handle when the channel has one, otherwise the
// numeric id as a string. The gateway resolves the two forms differently.
func (c *Channel) Identifier() string {
	if c.Username != nil && *c.Username != "" {
		return *c.Username
	}
	return strconv.FormatInt(c.TelegramID, 10)
}

// Entity is a resolved source-side channel identity.
type Entity struct {
	ID        int64
	Handle    string
	Title     string
	Broadcast bool
}

// ChannelInfo is the enrichment payload for a resolved entity.
type ChannelInfo struct {
	TelegramID       int64
	Username         string
	Title            string
	Description      string
	IsVerified       bool
	SubscribersCount int64
}
