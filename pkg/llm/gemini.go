// Package llm implements the chat.Generator contract on top of langchaingo's
// Google AI (Gemini) provider.
package llm

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/charla-ai/charla/pkg/model"
)

// DefaultModel is the generation model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Gemini generates replies through the Google AI API.
type Gemini struct {
	client *googleai.GoogleAI
	model  string
}

// NewGemini constructs the generation client once; the gateway owns it for
// the process lifetime and injects it into the pipeline.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: missing API key")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(modelName),
	)
	if err != nil {
		return nil, errors.Wrap(err, "gemini: create client")
	}
	return &Gemini{client: client, model: modelName}, nil
}

// Generate maps the composed turns onto the two-party role vocabulary of the
// model API and returns the reply text.
func (g *Gemini) Generate(ctx context.Context, system string, turns []model.Turn, maxTokens int) (string, error) {
	messages := make([]llms.MessageContent, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, t := range turns {
		switch t.Role {
		case model.RoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, t.Content))
		default:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, t.Content))
		}
	}

	resp, err := g.client.GenerateContent(ctx, messages, llms.WithMaxTokens(maxTokens))
	if err != nil {
		return "", errors.Wrap(err, "gemini: generate")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("gemini: empty response")
	}
	text := resp.Choices[0].Content
	log.Debug().Str("model", g.model).Int("reply_len", len(text)).Msg("generation completed")
	return text, nil
}
