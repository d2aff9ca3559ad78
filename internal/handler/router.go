package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	chathandler "github.com/llmgate/llmgate/internal/handler/chat"
	historyhandler "github.com/llmgate/llmgate/internal/handler/history"
	userhandler "github.com/llmgate/llmgate/internal/handler/user"
	"github.com/llmgate/llmgate/internal/middleware"
	gatewayservice "github.com/llmgate/llmgate/internal/service/gateway"
	userservice "github.com/llmgate/llmgate/internal/service/user"
	"github.com/llmgate/llmgate/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(gateway *gatewayservice.Service, users *userservice.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	chatHandler := chathandler.New(gateway)
	historyHandler := historyhandler.New(gateway)
	userHandler := userhandler.New(users)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the LLM Chat API"})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		historyHandler.RegisterRoutes(api)
		userHandler.RegisterRoutes(api)
	})

	return r
}
