package provider

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"

	"github.com/llmgate/llmgate/internal/model/chat"
)

const arkID = "ark"

// Ark wraps an eino chat model (Volcengine Ark) as a provider. The eino
// schema already carries roles, so the history maps straight across.
type Ark struct {
	chatModel model.ChatModel
}

// NewArk wraps an already-constructed eino chat model.
func NewArk(chatModel model.ChatModel) *Ark {
	return &Ark{chatModel: chatModel}
}

func (p *Ark) ID() string { return arkID }

// Generate replays the log as eino schema messages.
func (p *Ark) Generate(ctx context.Context, log chat.Log, maxTokens int) (string, error) {
	messages := make([]*schema.Message, 0, len(log))
	for _, msg := range log {
		switch msg.Role {
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		}
	}

	opts := []model.Option{}
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}

	response, err := p.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return "", errors.Wrapf(ErrProvider, "ark generate: %v", err)
	}
	if response == nil {
		return "", nil
	}
	return response.Content, nil
}
