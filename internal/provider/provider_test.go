package provider

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmgate/llmgate/internal/model/chat"
)

type fakeProvider struct{ id string }

func (p *fakeProvider) ID() string { return p.id }

func (p *fakeProvider) Generate(context.Context, chat.Log, int) (string, error) {
	return "", nil
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeProvider{id: "openai"})
	registry.Register(&fakeProvider{id: "claude"})

	p, ok := registry.Lookup("openai")
	require.True(t, ok)
	require.Equal(t, "openai", p.ID())

	_, ok = registry.Lookup("gemini")
	require.False(t, ok)

	require.Equal(t, []string{"claude", "openai"}, registry.IDs())
}

func TestRegistryRegisterReplaces(t *testing.T) {
	registry := NewRegistry()
	first := &fakeProvider{id: "openai"}
	second := &fakeProvider{id: "openai"}
	registry.Register(first)
	registry.Register(second)

	p, ok := registry.Lookup("openai")
	require.True(t, ok)
	require.Same(t, second, p)
	require.Len(t, registry.IDs(), 1)
}

type closableProvider struct {
	fakeProvider
	closed bool
}

func (p *closableProvider) Close() error {
	p.closed = true
	return nil
}

func TestRegistryCloseReleasesProviders(t *testing.T) {
	registry := NewRegistry()
	gemini := &closableProvider{fakeProvider: fakeProvider{id: "gemini"}}
	registry.Register(gemini)
	registry.Register(&fakeProvider{id: "openai"})

	require.NoError(t, registry.Close())
	require.True(t, gemini.closed)
}

func TestClampTokens(t *testing.T) {
	require.Equal(t, int32(100), clampTokens(100))
	require.Equal(t, int32(math.MaxInt32), clampTokens(math.MaxInt32))
	require.Equal(t, int32(math.MaxInt32), clampTokens(math.MaxInt32+1))
}

func TestFlattenTranscript(t *testing.T) {
	log := chat.Log{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
		{Role: chat.RoleUser, Content: "how are you?"},
	}

	require.Equal(t, "user: hi\nassistant: hello\nuser: how are you?", flattenTranscript(log))
	require.Equal(t, "", flattenTranscript(nil))
}
