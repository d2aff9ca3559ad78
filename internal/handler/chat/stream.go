package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/llmgate/llmgate/internal/model/chat"
	"github.com/llmgate/llmgate/pkg/utils"
)

// streamEvent is one SSE frame of a streamed chat turn.
type streamEvent struct {
	Event    string `json:"event"`
	Content  string `json:"content,omitempty"`
	Error    string `json:"error,omitempty"`
	Finished bool   `json:"finished,omitempty"`
}

// handleStream runs one gateway send and reports it over Server-Sent
// Events: a start frame, then either a message or an error frame, then an
// end frame. The generation itself is not chunked; the SSE surface exists
// so clients can keep one wire format for all chat endpoints.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	providerID := chi.URLParam(r, "provider")
	query := r.URL.Query()
	key := chat.Key{
		UserID:         query.Get("username"),
		ConversationID: query.Get("conversationId"),
	}
	prompt := query.Get("message")

	if prompt == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, streamEvent{Event: "start"})

	reply, err := h.gateway.Send(r.Context(), providerID, key, prompt, 0)
	if err != nil {
		utils.SendSSEChunk(w, flusher, streamEvent{Event: "error", Error: err.Error()})
		return
	}

	utils.SendSSEChunk(w, flusher, streamEvent{Event: "message", Content: reply.Message.Content})
	utils.SendSSEChunk(w, flusher, streamEvent{Event: "end", Finished: true})
}
