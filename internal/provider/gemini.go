package provider

import (
	"context"
	"math"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/llmgate/llmgate/internal/model/chat"
)

const geminiID = "gemini"

// Gemini sends the history as bare text parts, the way the generateContent
// API accepts a multi-part prompt without role framing.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini builds the adapter. model falls back to gemini-2.0-flash when
// empty.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(ErrProvider, "create gemini client: %v", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{client: client, model: model}, nil
}

func (p *Gemini) ID() string { return geminiID }

// Generate concatenates every message's content as prompt parts and returns
// the joined text parts of the first candidate.
func (p *Gemini) Generate(ctx context.Context, log chat.Log, maxTokens int) (string, error) {
	model := p.client.GenerativeModel(p.model)
	if maxTokens > 0 {
		model.SetMaxOutputTokens(clampTokens(maxTokens))
	}

	parts := make([]genai.Part, 0, len(log))
	for _, msg := range log {
		parts = append(parts, genai.Text(msg.Content))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", errors.Wrapf(ErrProvider, "gemini generate content: %v", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}
	return builder.String(), nil
}

// Close releases the underlying API client.
func (p *Gemini) Close() error {
	return p.client.Close()
}

// clampTokens caps a token budget at the int32 range the generation config
// accepts, so an oversized request doesn't wrap into a bogus limit.
func clampTokens(maxTokens int) int32 {
	if maxTokens > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(maxTokens)
}
