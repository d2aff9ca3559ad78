package provider

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/llmgate/llmgate/internal/model/chat"
)

const claudeID = "claude"

// Claude flattens the history into a role-prefixed transcript and sends it
// as a single user turn, preserving the transcript shape the legacy
// completions endpoint expected.
type Claude struct {
	client anthropic.Client
	model  string
}

// NewClaude builds the adapter. model falls back to
// claude-3-5-sonnet-latest when empty.
func NewClaude(apiKey, model string) *Claude {
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &Claude{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *Claude) ID() string { return claudeID }

// Generate joins the log as "role: content" lines and returns the
// concatenated text blocks of the reply.
func (p *Claude) Generate(ctx context.Context, log chat.Log, maxTokens int) (string, error) {
	transcript := flattenTranscript(log)

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(transcript)),
		},
	})
	if err != nil {
		return "", errors.Wrapf(ErrProvider, "claude message: %v", err)
	}

	var builder strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}
	return builder.String(), nil
}

// flattenTranscript renders the log as "role: content" lines, one per
// message, matching the transcript format the legacy completion prompt
// used.
func flattenTranscript(log chat.Log) string {
	lines := make([]string, 0, len(log))
	for _, msg := range log {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(lines, "\n")
}
