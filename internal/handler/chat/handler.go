package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/llmgate/llmgate/internal/model/chat"
	"github.com/llmgate/llmgate/internal/provider"
	gatewayservice "github.com/llmgate/llmgate/internal/service/gateway"
	"github.com/llmgate/llmgate/internal/storage"
	"github.com/llmgate/llmgate/pkg/utils"
)

// Handler exposes the chat gateway over HTTP. Provider selection stays in
// the URL path, one prefix per provider.
type Handler struct {
	gateway *gatewayservice.Service
}

// New creates the chat handler.
func New(gateway *gatewayservice.Service) *Handler {
	return &Handler{gateway: gateway}
}

// RegisterRoutes mounts the chat endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/{provider}/chat", h.handleChat)
	r.Get("/chat/stream/{provider}", h.handleStream)
	r.Get("/chat/ws", h.handleWebSocket)
	r.Get("/providers", h.handleProviders)
}

type chatRequest struct {
	Username       string `json:"username"`
	ConversationID string `json:"conversationId"`
	Prompt         string `json:"prompt"`
	MaxTokens      int    `json:"maxTokens"`
}

type chatResponse struct {
	Response string `json:"response"`
	Warning  string `json:"warning,omitempty"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider")

	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := chat.Key{UserID: payload.Username, ConversationID: payload.ConversationID}
	reply, err := h.gateway.Send(r.Context(), providerID, key, payload.Prompt, payload.MaxTokens)
	if err != nil {
		status := statusForError(err)
		utils.RespondError(w, status, err.Error())
		return
	}

	response := chatResponse{Response: reply.Message.Content}
	if reply.StorageWarning != nil {
		response.Warning = reply.StorageWarning.Error()
	}
	utils.RespondJSON(w, http.StatusOK, response)
}

func (h *Handler) handleProviders(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string][]string{"providers": h.gateway.Providers()})
}

// statusForError maps the service error taxonomy onto HTTP codes:
// validation 400, storage 500, provider 502.
func statusForError(err error) int {
	switch {
	case errors.Is(err, gatewayservice.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, storage.ErrStorage):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
