package history_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/llmgate/llmgate/internal/model/chat"
	"github.com/llmgate/llmgate/internal/service/history"
	"github.com/llmgate/llmgate/internal/storage"
)

// failingBackend rejects every flush after failAfter successes.
type failingBackend struct {
	flushes   int
	failAfter int
}

func (b *failingBackend) Load(context.Context) (storage.Snapshot, error) {
	return storage.Snapshot{}, nil
}

func (b *failingBackend) Flush(context.Context, storage.Snapshot) error {
	b.flushes++
	if b.flushes > b.failAfter {
		return errors.Wrap(storage.ErrStorage, "flush rejected")
	}
	return nil
}

func newStore(t *testing.T, backend storage.Backend) *history.Store {
	t.Helper()
	store, err := history.NewStore(context.Background(), backend)
	require.NoError(t, err)
	return store
}

func TestStoreAppendOrdering(t *testing.T) {
	store := newStore(t, storage.NewMemory())
	ctx := context.Background()
	key := chat.Key{UserID: "alice", ConversationID: "c1"}

	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, key, chat.NewMessage(chat.RoleUser, fmt.Sprintf("msg-%d", i)))
		require.NoError(t, err)
	}

	snapshot := store.Snapshot(key)
	require.Len(t, snapshot, 5)
	for i, msg := range snapshot {
		require.Equal(t, fmt.Sprintf("msg-%d", i), msg.Content)
	}
}

func TestStoreSnapshotUnknownKey(t *testing.T) {
	store := newStore(t, storage.NewMemory())

	snapshot := store.Snapshot(chat.Key{UserID: "bob", ConversationID: "none"})
	require.Empty(t, snapshot)
	require.False(t, store.Exists("bob"))
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	store := newStore(t, storage.NewMemory())
	ctx := context.Background()
	key := chat.Key{UserID: "alice", ConversationID: "c1"}

	_, err := store.Append(ctx, key, chat.NewMessage(chat.RoleUser, "hi"))
	require.NoError(t, err)

	snapshot := store.Snapshot(key)
	snapshot[0].Content = "tampered"

	require.Equal(t, "hi", store.Snapshot(key)[0].Content)
}

func TestStoreRollbackOnFlushFailure(t *testing.T) {
	backend := &failingBackend{failAfter: 1}
	store := newStore(t, backend)
	ctx := context.Background()
	key := chat.Key{UserID: "alice", ConversationID: "c1"}

	_, err := store.Append(ctx, key, chat.NewMessage(chat.RoleUser, "kept"))
	require.NoError(t, err)

	_, err = store.Append(ctx, key, chat.NewMessage(chat.RoleUser, "dropped"))
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrStorage)

	snapshot := store.Snapshot(key)
	require.Len(t, snapshot, 1)
	require.Equal(t, "kept", snapshot[0].Content)
}

func TestStoreDurabilityAcrossRestart(t *testing.T) {
	backend := storage.NewMemory()
	ctx := context.Background()
	key := chat.Key{UserID: "alice", ConversationID: "c1"}

	store := newStore(t, backend)
	_, err := store.Append(ctx, key, chat.NewMessage(chat.RoleUser, "hi"))
	require.NoError(t, err)
	_, err = store.Append(ctx, key, chat.NewMessage(chat.RoleAssistant, "hello"))
	require.NoError(t, err)

	// Simulated restart: a fresh store rehydrated from the same backend.
	reloaded := newStore(t, backend)
	snapshot := reloaded.Snapshot(key)
	require.Len(t, snapshot, 2)
	require.Equal(t, "hi", snapshot[0].Content)
	require.Equal(t, "hello", snapshot[1].Content)
}

func TestStoreIsolationAcrossKeys(t *testing.T) {
	store := newStore(t, storage.NewMemory())
	ctx := context.Background()

	const perKey = 50
	keys := []chat.Key{
		{UserID: "u1", ConversationID: "c1"},
		{UserID: "u2", ConversationID: "c2"},
	}

	var group errgroup.Group
	for _, key := range keys {
		key := key
		group.Go(func() error {
			for i := 0; i < perKey; i++ {
				msg := chat.NewMessage(chat.RoleUser, fmt.Sprintf("%s-%d", key.UserID, i))
				if _, err := store.Append(ctx, key, msg); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())

	for _, key := range keys {
		snapshot := store.Snapshot(key)
		require.Len(t, snapshot, perKey)
		for i, msg := range snapshot {
			require.Equal(t, fmt.Sprintf("%s-%d", key.UserID, i), msg.Content)
		}
	}
}

// stallingBackend blocks its first flush until released, accepts the second
// and rejects the third, keeping the last accepted snapshot for rehydration.
type stallingBackend struct {
	mu      sync.Mutex
	flushes int
	started chan struct{}
	release chan struct{}
	last    storage.Snapshot
}

func newStallingBackend() *stallingBackend {
	return &stallingBackend{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *stallingBackend) Load(context.Context) (storage.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return storage.Snapshot{}, nil
	}
	return b.last.Clone(), nil
}

func (b *stallingBackend) Flush(_ context.Context, snapshot storage.Snapshot) error {
	b.mu.Lock()
	b.flushes++
	n := b.flushes
	b.mu.Unlock()

	if n == 1 {
		close(b.started)
		<-b.release
	}
	if n == 3 {
		return errors.Wrap(storage.ErrStorage, "flush rejected")
	}

	b.mu.Lock()
	b.last = snapshot.Clone()
	b.mu.Unlock()
	return nil
}

func TestStoreRollbackNeverReachesDurableState(t *testing.T) {
	backend := newStallingBackend()
	store := newStore(t, backend)
	ctx := context.Background()

	keys := []chat.Key{
		{UserID: "u1", ConversationID: "c1"},
		{UserID: "u2", ConversationID: "c2"},
		{UserID: "u3", ConversationID: "c3"},
	}

	// Three appends on independent keys while the first flush is in flight.
	// One of them hits the rejected flush; its message must not leak into
	// any snapshot flushed by the others.
	errs := make([]error, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key chat.Key) {
			defer wg.Done()
			_, errs[i] = store.Append(ctx, key, chat.NewMessage(chat.RoleUser, key.UserID+"-msg"))
		}(i, key)
		if i == 0 {
			<-backend.started
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			require.ErrorIs(t, err, storage.ErrStorage)
		}
	}
	require.Equal(t, 1, failed)

	// The durable state a restart would see must match memory exactly: the
	// rolled-back append absent from both, the acknowledged ones in both.
	reloaded := newStore(t, backend)
	for i, key := range keys {
		want := store.Snapshot(key)
		require.Equal(t, want, reloaded.Snapshot(key))
		if errs[i] != nil {
			require.Empty(t, want)
		} else {
			require.Len(t, want, 1)
		}
	}
}

func TestStoreListConversations(t *testing.T) {
	store := newStore(t, storage.NewMemory())
	ctx := context.Background()

	for _, id := range []string{"c2", "c1", "c3"} {
		_, err := store.Append(ctx, chat.Key{UserID: "alice", ConversationID: id}, chat.NewMessage(chat.RoleUser, "hi"))
		require.NoError(t, err)
	}

	require.True(t, store.Exists("alice"))
	require.Equal(t, []string{"c1", "c2", "c3"}, store.ListConversations("alice"))
	require.Empty(t, store.ListConversations("nobody"))
}

func TestStoreCloseFlushes(t *testing.T) {
	backend := storage.NewMemory()
	ctx := context.Background()
	key := chat.Key{UserID: "alice", ConversationID: "c1"}

	store := newStore(t, backend)
	_, err := store.Append(ctx, key, chat.NewMessage(chat.RoleUser, "hi"))
	require.NoError(t, err)
	require.NoError(t, store.Close(ctx))

	reloaded := newStore(t, backend)
	require.Len(t, reloaded.Snapshot(key), 1)
}
