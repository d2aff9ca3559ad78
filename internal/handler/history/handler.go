package history

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	gatewayservice "github.com/llmgate/llmgate/internal/service/gateway"
	"github.com/llmgate/llmgate/pkg/utils"
)

// Handler serves conversation history retrieval. Unknown users and
// conversations are empty results, not 404s: the read contract of the
// store never errors on absence.
type Handler struct {
	gateway *gatewayservice.Service
}

// New creates the history handler.
func New(gateway *gatewayservice.Service) *Handler {
	return &Handler{gateway: gateway}
}

// RegisterRoutes mounts the history endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/history/{username}", h.handleUserHistory)
	r.Get("/history/{username}/{conversationID}", h.handleConversation)
}

func (h *Handler) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	conversations := h.gateway.History(username, "")
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"username":      username,
		"conversations": conversations,
	})
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	conversationID := chi.URLParam(r, "conversationID")
	conversations := h.gateway.History(username, conversationID)
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"username":       username,
		"conversationId": conversationID,
		"messages":       conversations[conversationID],
	})
}
