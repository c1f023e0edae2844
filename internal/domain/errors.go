package domain

import "errors"

var (
	// ErrEntityNotFound means the identifier does not resolve to a
	// channel-type entity on the source.
	ErrEntityNotFound = errors.New("entity not found or not a channel")

	// ErrSyncAlreadyRunning is the normal rejection of a trigger that
	// arrives while a run is in progress.
	ErrSyncAlreadyRunning = errors.New("sync already running")

	// ErrSourceUnavailable means the source cannot be reached at all;
	// fatal for a whole run.
	ErrSourceUnavailable = errors.New("source unavailable")

	ErrChannelNotFound = errors.New("channel not found")
)
