package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/llmgate/llmgate/internal/config"
	"github.com/llmgate/llmgate/internal/handler"
	"github.com/llmgate/llmgate/internal/provider"
	gatewayservice "github.com/llmgate/llmgate/internal/service/gateway"
	"github.com/llmgate/llmgate/internal/service/history"
	userservice "github.com/llmgate/llmgate/internal/service/user"
	"github.com/llmgate/llmgate/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file loaded, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	backend, err := newBackend(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage backend")
	}
	log.Info().Str("backend", cfg.Storage.Backend).Msg("storage backend ready")

	store, err := history.NewStore(ctx, backend)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to rehydrate conversation store")
	}

	registry := newRegistry(ctx, cfg)
	if len(registry.IDs()) == 0 {
		log.Warn().Msg("no provider credentials configured, chat endpoints will reject all requests")
	} else {
		log.Info().Strs("providers", registry.IDs()).Msg("providers configured")
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled() {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
		log.Info().Float64("rps", cfg.RateLimit.RPS).Int("burst", cfg.RateLimit.Burst).Msg("provider rate limit enabled")
	}

	users, err := userservice.NewService(cfg.Users.File)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load user credentials")
	}

	gateway := gatewayservice.NewService(store, registry, limiter)
	router := handler.NewRouter(gateway, users)

	if err := runServer(ctx, cfg.Server, router); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("final store flush failed")
	}
	if err := registry.Close(); err != nil {
		log.Error().Err(err).Msg("provider cleanup failed")
	}
}

// newBackend selects the persistence backend from configuration.
func newBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), nil
	case config.BackendMongo:
		return storage.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return storage.NewFile(cfg.HistoryFile), nil
	}
}

// newRegistry registers every provider whose credentials are present. A
// provider with missing credentials is skipped, not fatal.
func newRegistry(ctx context.Context, cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry()

	if cfg.OpenAI.Enabled() {
		registry.Register(provider.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model))
	}
	if cfg.Gemini.Enabled() {
		gemini, err := provider.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize gemini provider, skipping")
		} else {
			registry.Register(gemini)
		}
	}
	if cfg.Claude.Enabled() {
		registry.Register(provider.NewClaude(cfg.Claude.APIKey, cfg.Claude.Model))
	}
	if cfg.Ark.Enabled() {
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize ark provider, skipping")
		} else {
			registry.Register(provider.NewArk(chatModel))
		}
	}

	return registry
}

// runServer blocks until ctx is cancelled or the listener fails. It always
// returns to main so the shutdown flush and provider cleanup run either way.
func runServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("llm chat gateway listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
