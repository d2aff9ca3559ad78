// Package provider adapts external LLM services behind one Generate call.
// Each adapter owns its vendor-specific history translation: OpenAI gets a
// role-tagged message list, Gemini gets bare contents, Claude gets a
// flattened role-prefixed transcript, Ark gets eino schema messages.
package provider

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/llmgate/llmgate/internal/model/chat"
)

// ErrProvider marks a failed or unusable external model call. The wrapped
// message names the provider so callers can decide whether to retry.
var ErrProvider = errors.New("provider failure")

// Provider generates an assistant completion from the full conversation
// log. An empty completion is returned as "" with a nil error; deciding
// what to do with it is the gateway's policy, not the adapter's.
type Provider interface {
	ID() string
	Generate(ctx context.Context, log chat.Log, maxTokens int) (string, error)
}

// Registry maps provider ids to configured adapters.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider under its own id.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Lookup returns the provider registered under id.
func (r *Registry) Lookup(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// Close releases every registered provider that holds an external client,
// returning the first close error. Called once at shutdown.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var firstErr error
	for _, p := range r.providers {
		closer, ok := p.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close provider %s", p.ID())
		}
	}
	return firstErr
}

// IDs lists registered provider ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
