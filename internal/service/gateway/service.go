package gateway

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/llmgate/llmgate/internal/model/chat"
	"github.com/llmgate/llmgate/internal/provider"
	"github.com/llmgate/llmgate/internal/service/history"
)

// ErrValidation marks malformed requests: missing prompt, unknown
// provider. No state is mutated when it is returned.
var ErrValidation = errors.New("invalid request")

// DefaultMaxTokens is applied when the caller sends no budget.
const DefaultMaxTokens = 100

// Reply is the outcome of one chat turn. StorageWarning is non-nil when
// the assistant message could not be persisted: the reply is still valid,
// but the next snapshot will show the user turn without it.
type Reply struct {
	Message        chat.Message
	StorageWarning error
}

// Service runs one send-prompt transaction end to end: persist the user
// turn, replay the full log to the selected provider, persist the reply.
type Service struct {
	store     *history.Store
	providers *provider.Registry
	limiter   *rate.Limiter
}

// NewService wires the gateway to its store and provider registry.
// limiter may be nil to disable provider-call rate limiting.
func NewService(store *history.Store, providers *provider.Registry, limiter *rate.Limiter) *Service {
	return &Service{store: store, providers: providers, limiter: limiter}
}

// Send executes one chat turn for (providerID, key).
//
// The user message is appended and flushed before the provider is called,
// so a provider failure or client timeout never loses the user's turn; the
// provider is never called when that append fails, so a storage failure
// never wastes provider spend. An empty completion is persisted as an
// empty assistant message, keeping every user turn paired for replay. The
// store's per-key lock is held across the whole turn; sends on other
// conversations proceed in parallel.
func (s *Service) Send(ctx context.Context, providerID string, key chat.Key, prompt string, maxTokens int) (*Reply, error) {
	if prompt == "" {
		return nil, errors.Wrap(ErrValidation, "prompt is required")
	}
	if key.UserID == "" || key.ConversationID == "" {
		return nil, errors.Wrap(ErrValidation, "username and conversation id are required")
	}
	p, ok := s.providers.Lookup(providerID)
	if !ok {
		return nil, errors.Wrapf(ErrValidation, "unknown provider %q", providerID)
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	unlock := s.store.LockKey(key)
	defer unlock()

	transcript, err := s.store.Append(ctx, key, chat.NewMessage(chat.RoleUser, prompt))
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrapf(provider.ErrProvider, "rate limit wait: %v", err)
		}
	}

	completion, err := p.Generate(ctx, transcript, maxTokens)
	if err != nil {
		// The user turn stays persisted so the client can retry without
		// re-entering the prompt.
		return nil, errors.WithMessagef(err, "generate for %s/%s", key.UserID, key.ConversationID)
	}

	assistant := chat.NewMessage(chat.RoleAssistant, completion)
	reply := &Reply{Message: assistant}
	if _, err := s.store.Append(ctx, key, assistant); err != nil {
		// The completion already cost provider spend; hand it to the
		// caller and surface the persistence failure as a warning.
		log.Warn().Err(err).
			Str("provider", providerID).
			Str("user", key.UserID).
			Str("conversation", key.ConversationID).
			Msg("assistant reply generated but not persisted")
		reply.StorageWarning = err
	}

	log.Info().
		Str("provider", providerID).
		Str("user", key.UserID).
		Str("conversation", key.ConversationID).
		Int("transcript_len", len(transcript)).
		Int("reply_len", len(completion)).
		Msg("chat turn completed")
	return reply, nil
}

// History returns every conversation for the user, or just the one named
// by conversationID when non-empty. Unknown users and conversations yield
// empty results, never errors.
func (s *Service) History(userID, conversationID string) map[string]chat.Log {
	if conversationID != "" {
		return map[string]chat.Log{
			conversationID: s.snapshotOrEmpty(userID, conversationID),
		}
	}

	result := make(map[string]chat.Log)
	for _, id := range s.store.ListConversations(userID) {
		result[id] = s.snapshotOrEmpty(userID, id)
	}
	return result
}

// Providers lists the configured provider ids.
func (s *Service) Providers() []string {
	return s.providers.IDs()
}

func (s *Service) snapshotOrEmpty(userID, conversationID string) chat.Log {
	entries := s.store.Snapshot(chat.Key{UserID: userID, ConversationID: conversationID})
	if entries == nil {
		return chat.Log{}
	}
	return entries
}
