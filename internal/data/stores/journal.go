package stores

import (
	"context"
	"fmt"

	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/core/kv"
)

const journalNamespace = "journal"

// QueueJournal persists the ordered queue of actions the backend has not
// acknowledged yet. Each backend gets its own key.
type QueueJournal struct {
	queues *kv.TypedKV[[]action.Envelope]
	server string
}

// NewQueueJournal returns the journal of server inside store.
func NewQueueJournal(store kv.KV, server string) *QueueJournal {
	return &QueueJournal{
		queues: kv.Scoped[[]action.Envelope](store, journalNamespace),
		server: server,
	}
}

// Server returns the backend this journal belongs to.
func (j *QueueJournal) Server() string {
	return j.server
}

// Save replaces the recorded queue. An empty queue removes the entry.
func (j *QueueJournal) Save(ctx context.Context, queue []action.Envelope) error {
	if len(queue) == 0 {
		if err := j.queues.Delete(ctx, j.server); err != nil {
			return fmt.Errorf("clear journal: %w", err)
		}
		return nil
	}
	if err := j.queues.Set(ctx, j.server, queue); err != nil {
		return fmt.Errorf("save journal: %w", err)
	}
	return nil
}

// Load returns the recorded queue, or nothing when no entry exists.
func (j *QueueJournal) Load(ctx context.Context) ([]action.Envelope, error) {
	queue, err := j.queues.Get(ctx, j.server)
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	return queue, nil
}

// JournaledServers lists the backends with undelivered actions in store.
func JournaledServers(ctx context.Context, store kv.KV) ([]string, error) {
	return kv.Scoped[[]action.Envelope](store, journalNamespace).Keys(ctx)
}
