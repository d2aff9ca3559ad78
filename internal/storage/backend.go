package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/llmgate/llmgate/internal/model/chat"
)

// ErrStorage marks durable read/write failures. Callers classify with
// errors.Is; the wrapped message carries the operation and key context.
var ErrStorage = errors.New("storage failure")

// Snapshot is the full persisted state: user id -> conversation id -> log.
type Snapshot map[string]map[string]chat.Log

// Clone deep-copies the snapshot so a flush can proceed without holding
// the store's lock over I/O.
func (s Snapshot) Clone() Snapshot {
	copied := make(Snapshot, len(s))
	for user, conversations := range s {
		copiedConvs := make(map[string]chat.Log, len(conversations))
		for id, log := range conversations {
			copiedConvs[id] = log.Clone()
		}
		copied[user] = copiedConvs
	}
	return copied
}

// Backend durably stores and rehydrates the whole conversation store.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Load returns the persisted snapshot, or an empty one when no prior
	// state exists. A corrupt or unreadable medium is an error and is
	// fatal at startup.
	Load(ctx context.Context) (Snapshot, error)

	// Flush durably writes the full snapshot so a subsequent Load
	// reconstructs an equivalent store.
	Flush(ctx context.Context, snapshot Snapshot) error
}

// ConversationFlusher is the per-key fast path: backends that can address a
// single conversation pay O(one conversation) per mutation instead of
// rewriting the whole store.
type ConversationFlusher interface {
	FlushConversation(ctx context.Context, key chat.Key, log chat.Log) error
}
