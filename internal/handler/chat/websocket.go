package chat

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/llmgate/llmgate/internal/model/chat"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Same wide-open policy as the CORS middleware.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type wsRequest struct {
	Provider       string `json:"provider"`
	Username       string `json:"username"`
	ConversationID string `json:"conversationId"`
	Prompt         string `json:"prompt"`
	MaxTokens      int    `json:"maxTokens"`
}

type wsResponse struct {
	Response string `json:"response,omitempty"`
	Warning  string `json:"warning,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleWebSocket runs chat turns over one duplex connection: each inbound
// frame is a full request, each outbound frame a reply or error. Frames on
// one connection are handled sequentially, so a single client cannot race
// itself on the same conversation.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var request wsRequest
		if err := conn.ReadJSON(&request); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		key := chat.Key{UserID: request.Username, ConversationID: request.ConversationID}
		reply, err := h.gateway.Send(r.Context(), request.Provider, key, request.Prompt, request.MaxTokens)
		if err != nil {
			if writeErr := conn.WriteJSON(wsResponse{Error: err.Error()}); writeErr != nil {
				return
			}
			continue
		}

		response := wsResponse{Response: reply.Message.Content}
		if reply.StorageWarning != nil {
			response.Warning = reply.StorageWarning.Error()
		}
		if err := conn.WriteJSON(response); err != nil {
			return
		}
	}
}
