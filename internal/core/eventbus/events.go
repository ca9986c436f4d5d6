// Package eventbus provides a typed publish/subscribe event bus through which
// the sync engine reports state changes and commit progress to observers.
package eventbus

import (
	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/core/state"
)

// Event names a kind of bus message.
type Event string

const (
	// Keep list sorted A-Z
	EventActionRejected  Event = "action.rejected"
	EventCommitFailed    Event = "commit.failed"
	EventCommitStarted   Event = "commit.started"
	EventCommitSucceeded Event = "commit.succeeded"
	EventStateChanged    Event = "state.changed"
)

// ActionRejectedPayload is emitted when an action returns a slice it did not
// declare. The offending slice update is dropped.
type ActionRejectedPayload struct {
	Kind  action.Kind
	Slice state.Slice
}

// CommitStartedPayload is emitted when a batch is handed to the transport.
type CommitStartedPayload struct {
	BatchID string
	Size    int
}

// CommitSucceededPayload is emitted when the backend accepted a batch.
type CommitSucceededPayload struct {
	BatchID   string
	Size      int
	FollowUps int
}

// CommitFailedPayload is emitted when a batch could not be delivered.
// Requeued reports whether the batch was put back for a retry.
type CommitFailedPayload struct {
	BatchID  string
	Size     int
	Err      error
	Requeued bool
}

// StateChangedPayload is emitted after slices of the store were replaced.
type StateChangedPayload struct {
	Slices []state.Slice
}
