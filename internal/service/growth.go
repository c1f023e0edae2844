package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"channelmirror/internal/domain"
)

var growthWindows = []struct {
	label  string
	length time.Duration
}{
	{"24h", 24 * time.Hour},
	{"7d", 7 * 24 * time.Hour},
	{"30d", 30 * 24 * time.Hour},
}

// Growth derives windowed growth metrics from a channel's snapshot series.
type Growth struct {
	channels     ChannelStore
	snapshots    SnapshotStore
	maxSnapshots int
}

func NewGrowth(channels ChannelStore, snapshots SnapshotStore, maxSnapshots int) *Growth {
	if maxSnapshots <= 0 {
		maxSnapshots = 30
	}
	return &Growth{
		channels:     channels,
		snapshots:    snapshots,
		maxSnapshots: maxSnapshots,
	}
}

// Report computes growth over the 24h/7d/30d windows. When history is too
// short for a window, the oldest available snapshot serves as a shared
// fallback reference as long as at least two snapshots exist.
func (g *Growth) Report(ctx context.Context, channelID int64) (*domain.GrowthReport, error) {
	channel, err := g.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}

	snapshots, err := g.snapshots.ListRecent(ctx, channelID, g.maxSnapshots)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	current := channel.SubscribersCount
	if len(snapshots) > 0 {
		current = snapshots[0].SubscribersCount
	}

	report := &domain.GrowthReport{
		ChannelID:    channelID,
		CurrentCount: current,
		Sparkline:    make([]int64, 0, len(snapshots)),
	}
	for i := len(snapshots) - 1; i >= 0; i-- {
		report.Sparkline = append(report.Sparkline, snapshots[i].SubscribersCount)
	}

	now := time.Now().UTC()
	var growth30 int64

	for _, w := range growthWindows {
		ref := findReference(snapshots, now, w.length)
		if ref == nil && len(snapshots) >= 2 {
			ref = &snapshots[len(snapshots)-1]
		}

		win := domain.GrowthWindow{Label: w.label}
		if ref != nil {
			win.Growth = current - ref.SubscribersCount
			if ref.SubscribersCount != 0 {
				pct := float64(win.Growth) / float64(ref.SubscribersCount) * 100
				win.Percent = math.Round(pct*100) / 100
			}
		}
		if w.label == "30d" {
			growth30 = win.Growth
		}
		report.Windows = append(report.Windows, win)
	}

	if growth30 != 0 {
		report.AvgDailyDelta = int64(math.Round(float64(growth30) / 30))
	}

	return report, nil
}

// findReference picks the newest snapshot at least window old. Snapshots
// arrive newest-first, so the first qualifying hit is the reference
// closest to the window boundary.
func findReference(snapshots []domain.ChannelSnapshot, now time.Time, window time.Duration) *domain.ChannelSnapshot {
	for i := range snapshots {
		if now.Sub(snapshots[i].RecordedAt) >= window {
			return &snapshots[i]
		}
	}
	return nil
}
