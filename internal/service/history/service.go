package history

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/llmgate/llmgate/internal/model/chat"
	"github.com/llmgate/llmgate/internal/storage"
)

// Store owns the mapping from (user, conversation) to an ordered message
// log. It is the sole writer of the persistence backend: every append is
// written through before it is acknowledged, and a failed write is rolled
// back so the in-memory and durable views never diverge.
type Store struct {
	backend storage.Backend

	mu   sync.RWMutex
	data storage.Snapshot

	// turnLocks serializes whole chat turns per key (held by the gateway
	// across append -> generate -> append). flushLocks serializes the
	// write-through of a single key so per-conversation flushes can't land
	// out of order; they are separate so Append can be called while a turn
	// lock is held.
	turnLocks  *keyedMutex
	flushLocks *keyedMutex

	// flushMu serializes whole-store appends for backends without a
	// per-conversation fast path. It covers the in-memory mutation AND
	// its flush: if it only covered the flush, a concurrent append on
	// another key could clone a message whose own flush later fails, and
	// the rolled-back message would survive in that other key's durable
	// snapshot.
	flushMu sync.Mutex
}

// NewStore rehydrates the store from the backend. A load failure is fatal
// at startup by contract, so it is returned rather than degraded.
func NewStore(ctx context.Context, backend storage.Backend) (*Store, error) {
	snapshot, err := backend.Load(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "rehydrate conversation store")
	}
	if snapshot == nil {
		snapshot = storage.Snapshot{}
	}
	return &Store{
		backend:    backend,
		data:       snapshot,
		turnLocks:  newKeyedMutex(),
		flushLocks: newKeyedMutex(),
	}, nil
}

// LockKey acquires the turn-level mutex for key and returns its unlock
// function. The gateway holds it across a full send so two concurrent
// requests on one conversation can never interleave their appends.
// Independent keys never contend.
func (s *Store) LockKey(key chat.Key) func() {
	return s.turnLocks.lock(lockName(key))
}

// Append adds message to the log at key, creating the log if absent, and
// writes the store through to the backend before acknowledging. On a
// backend failure the in-memory append is rolled back and the error is
// returned; otherwise a copy of the updated log is returned.
func (s *Store) Append(ctx context.Context, key chat.Key, message chat.Message) (chat.Log, error) {
	if flusher, ok := s.backend.(storage.ConversationFlusher); ok {
		return s.appendPerKey(ctx, flusher, key, message)
	}
	return s.appendWholeStore(ctx, key, message)
}

// appendPerKey writes through one conversation at a time. The key's flush
// lock keeps same-key writes landing in append order.
func (s *Store) appendPerKey(ctx context.Context, flusher storage.ConversationFlusher, key chat.Key, message chat.Message) (chat.Log, error) {
	unlock := s.flushLocks.lock(lockName(key))
	defer unlock()

	updated := s.apply(key, message)
	if err := flusher.FlushConversation(ctx, key, updated); err != nil {
		s.rollback(key, message.ID)
		return nil, errors.WithMessagef(err, "append %s/%s", key.UserID, key.ConversationID)
	}
	return updated, nil
}

// appendWholeStore holds flushMu across both the in-memory mutation and the
// backend write, so every flushed snapshot contains only acknowledged
// appends and a rollback can never leave a phantom message in durable state.
func (s *Store) appendWholeStore(ctx context.Context, key chat.Key, message chat.Message) (chat.Log, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	updated := s.apply(key, message)

	s.mu.RLock()
	snapshot := s.data.Clone()
	s.mu.RUnlock()

	if err := s.backend.Flush(ctx, snapshot); err != nil {
		s.rollback(key, message.ID)
		return nil, errors.WithMessagef(err, "append %s/%s", key.UserID, key.ConversationID)
	}
	return updated, nil
}

// apply performs the in-memory append and returns a copy of the updated log.
func (s *Store) apply(key chat.Key, message chat.Message) chat.Log {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations, ok := s.data[key.UserID]
	if !ok {
		conversations = make(map[string]chat.Log)
		s.data[key.UserID] = conversations
	}
	conversations[key.ConversationID] = append(conversations[key.ConversationID], message)
	return conversations[key.ConversationID].Clone()
}

// Snapshot returns a copy of the current log for key. Unknown keys yield an
// empty log; absence is not an error at this layer.
func (s *Store) Snapshot(key chat.Key) chat.Log {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key.UserID][key.ConversationID].Clone()
}

// Exists reports whether any history is stored for the user.
func (s *Store) Exists(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[userID]) > 0
}

// ListConversations returns the user's conversation ids, sorted for stable
// responses.
func (s *Store) ListConversations(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversations := s.data[userID]
	ids := make([]string, 0, len(conversations))
	for id := range conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close flushes the full store one last time. Called at shutdown.
func (s *Store) Close(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.Clone()
	s.mu.RUnlock()

	if err := s.backend.Flush(ctx, snapshot); err != nil {
		return errors.WithMessage(err, "final flush")
	}
	return nil
}

// rollback removes the message appended by a failed write so a later
// Snapshot never shows a phantom entry.
func (s *Store) rollback(key chat.Key, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logEntries := s.data[key.UserID][key.ConversationID]
	for i := len(logEntries) - 1; i >= 0; i-- {
		if logEntries[i].ID == messageID {
			s.data[key.UserID][key.ConversationID] = append(logEntries[:i:i], logEntries[i+1:]...)
			break
		}
	}
	log.Warn().
		Str("user", key.UserID).
		Str("conversation", key.ConversationID).
		Msg("rolled back unflushed append")
}

func lockName(key chat.Key) string {
	// NUL can't appear in identifiers coming from HTTP paths or JSON, so
	// this join can't collide across (user, conversation) pairs.
	return key.UserID + "\x00" + key.ConversationID
}
