package provider

import (
	"context"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/llmgate/llmgate/internal/model/chat"
)

const openaiID = "openai"

// OpenAI sends the history as a role-tagged chat completion request.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds the adapter. model falls back to gpt-4.1 when empty.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = "gpt-4.1"
	}
	return &OpenAI{client: openai.NewClient(apiKey), model: model}
}

func (p *OpenAI) ID() string { return openaiID }

// Generate replays the full log as chat messages and returns the first
// choice's content. No choices means an empty completion, not an error.
func (p *OpenAI) Generate(ctx context.Context, log chat.Log, maxTokens int) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(log))
	for _, msg := range log {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", errors.Wrapf(ErrProvider, "openai chat completion: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
