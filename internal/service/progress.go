package service

import (
	"sync"
	"time"

	"channelmirror/internal/domain"
)

// Tracker owns the process-wide sync progress state. All access goes
// through its methods; TryStart is the compare-and-swap gate that keeps
// two runs from racing on the same channels.
type Tracker struct {
	mu  sync.Mutex
	run domain.SyncRun
}

func NewTracker() *Tracker {
	return &Tracker{run: domain.SyncRun{Status: domain.RunIdle}}
}

// TryStart replaces the previous run with a fresh in-progress one. It
// fails when a run is already in progress; idle, done and error states
// all permit a new run.
func (t *Tracker) TryStart(mode domain.SyncMode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.run.Status == domain.RunInProgress {
		return false
	}

	now := time.Now().UTC()
	t.run = domain.SyncRun{
		Status:    domain.RunInProgress,
		Mode:      mode,
		StartedAt: &now,
	}
	return true
}

// SetChannels registers the run's targets with pending sub-status.
func (t *Tracker) SetChannels(channels []domain.Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.run.Channels = make([]domain.ChannelProgress, len(channels))
	for i, ch := range channels {
		t.run.Channels[i] = domain.ChannelProgress{
			ChannelID: ch.ID,
			Title:     ch.Title,
			Status:    domain.ChannelSyncPending,
		}
	}
}

func (t *Tracker) StartChannel(channelID int64) {
	t.setChannelStatus(channelID, domain.ChannelSyncInProgress, "")
}

func (t *Tracker) FinishChannel(channelID int64) {
	t.setChannelStatus(channelID, domain.ChannelSyncDone, "")
}

func (t *Tracker) FailChannel(channelID int64, errMsg string) {
	t.setChannelStatus(channelID, domain.ChannelSyncError, errMsg)
}

// AddBatch accumulates one committed batch into the channel's counters.
func (t *Tracker) AddBatch(channelID int64, res domain.BatchResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.run.Channels {
		if t.run.Channels[i].ChannelID == channelID {
			t.run.Channels[i].Scraped += res.Scraped
			t.run.Channels[i].New += res.New
			t.run.Channels[i].Updated += res.Updated
			return
		}
	}
}

// Finish freezes the run as done.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	t.run.Status = domain.RunDone
	t.run.FinishedAt = &now
}

// Fail freezes the run as error with a run-level message.
func (t *Tracker) Fail(errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	t.run.Status = domain.RunError
	t.run.Error = errMsg
	t.run.FinishedAt = &now
}

// Snapshot returns a copy safe to serve to pollers while the run mutates.
func (t *Tracker) Snapshot() domain.SyncRun {
	t.mu.Lock()
	defer t.mu.Unlock()

	run := t.run
	run.Channels = make([]domain.ChannelProgress, len(t.run.Channels))
	copy(run.Channels, t.run.Channels)
	return run
}

func (t *Tracker) setChannelStatus(channelID int64, status domain.ChannelSyncStatus, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.run.Channels {
		if t.run.Channels[i].ChannelID == channelID {
			t.run.Channels[i].Status = status
			t.run.Channels[i].Error = errMsg
			return
		}
	}
}
