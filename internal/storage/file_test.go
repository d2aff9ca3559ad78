package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmgate/llmgate/internal/model/chat"
	"github.com/llmgate/llmgate/internal/storage"
)

func TestFileLoadMissingFile(t *testing.T) {
	backend := storage.NewFile(filepath.Join(t.TempDir(), "chat_history.json"))

	snapshot, err := backend.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, snapshot)
}

func TestFileFlushLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	backend := storage.NewFile(path)
	ctx := context.Background()

	snapshot := storage.Snapshot{
		"alice": {
			"c1": chat.Log{
				chat.NewMessage(chat.RoleUser, "hi"),
				chat.NewMessage(chat.RoleAssistant, "hello"),
			},
		},
	}
	require.NoError(t, backend.Flush(ctx, snapshot))

	loaded, err := backend.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded["alice"]["c1"], 2)
	require.Equal(t, chat.RoleUser, loaded["alice"]["c1"][0].Role)
	require.Equal(t, "hi", loaded["alice"]["c1"][0].Content)
	require.Equal(t, "hello", loaded["alice"]["c1"][1].Content)
}

func TestFileLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := storage.NewFile(path).Load(context.Background())
	require.ErrorIs(t, err, storage.ErrStorage)
}

// The original revisions persisted bare {role, content} records; newer
// message fields must not break loading that shape.
func TestFileLoadLegacyRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	legacy := `{"alice": {"c1": [{"role": "user", "content": "hi"}]}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	loaded, err := storage.NewFile(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded["alice"]["c1"], 1)
	require.Equal(t, "hi", loaded["alice"]["c1"][0].Content)
	require.Empty(t, loaded["alice"]["c1"][0].ID)
}

func TestFileFlushOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	backend := storage.NewFile(path)
	ctx := context.Background()

	require.NoError(t, backend.Flush(ctx, storage.Snapshot{
		"alice": {"c1": chat.Log{chat.NewMessage(chat.RoleUser, "first")}},
	}))
	require.NoError(t, backend.Flush(ctx, storage.Snapshot{
		"alice": {"c1": chat.Log{
			chat.NewMessage(chat.RoleUser, "first"),
			chat.NewMessage(chat.RoleAssistant, "second"),
		}},
	}))

	loaded, err := backend.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded["alice"]["c1"], 2)
}
