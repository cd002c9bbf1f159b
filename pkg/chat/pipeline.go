package chat

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/charla-ai/charla/pkg/model"
)

const (
	// ApologyReply replaces the reply text when the generation call fails.
	ApologyReply = "Sorry, there was a problem processing your request with the AI model."

	// NoAnswerReply replaces an empty or whitespace-only generation result.
	// It also guards the synthesizer, which rejects empty input.
	NoAnswerReply = "The AI model could not produce a clear answer."

	// DefaultMaxOutputTokens bounds the generated reply length.
	DefaultMaxOutputTokens = 800

	// DefaultStageTimeout bounds each outward call. The external services
	// carry their own timeouts too; this is the local ceiling.
	DefaultStageTimeout = 30 * time.Second
)

// Reply is the pipeline result. Text is always non-empty; Audio is optional
// and its absence is not an error.
type Reply struct {
	Text  string
	Audio []byte
}

// PipelineOptions tune the response pipeline.
type PipelineOptions struct {
	MaxOutputTokens int
	StageTimeout    time.Duration
}

// Pipeline sequences retrieval, composition, generation and synthesis for one
// utterance, isolating each stage's failures: retrieval failures yield empty
// context, generation failures yield a fixed apology, synthesis failures
// yield a text-only reply. No stage retries.
type Pipeline struct {
	retriever   Retriever
	composer    *Composer
	generator   Generator
	synthesizer Synthesizer

	maxOutputTokens int
	stageTimeout    time.Duration
}

// NewPipeline wires the pipeline's collaborators. retriever and synthesizer
// may be nil (retrieval and synthesis are optional enrichment stages);
// generator must not be.
func NewPipeline(retriever Retriever, composer *Composer, generator Generator, synthesizer Synthesizer, opts PipelineOptions) *Pipeline {
	if composer == nil {
		composer = NewComposer(0)
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}
	return &Pipeline{
		retriever:       retriever,
		composer:        composer,
		generator:       generator,
		synthesizer:     synthesizer,
		maxOutputTokens: opts.MaxOutputTokens,
		stageTimeout:    opts.StageTimeout,
	}
}

// Run executes the stage sequence Retrieving → Composing → Generating →
// Synthesizing and always returns a reply with non-empty text.
func (p *Pipeline) Run(ctx context.Context, utterance string, persona *model.Persona, history []model.Turn) Reply {
	var retrieved string
	if p.retriever != nil {
		rctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
		retrieved = p.retriever.Retrieve(rctx, utterance)
		cancel()
	}

	system, turns := p.composer.Compose(persona, history, retrieved, utterance)

	gctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	text, err := p.generator.Generate(gctx, system, turns, p.maxOutputTokens)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("component", "pipeline").Msg("generation failed, substituting apology")
		text = ApologyReply
	}

	if strings.TrimSpace(text) == "" {
		// Never hand empty text to the synthesizer; the service rejects it.
		log.Warn().Str("component", "pipeline").Msg("empty reply from model, skipping synthesis")
		return Reply{Text: NoAnswerReply}
	}

	var audio []byte
	if p.synthesizer != nil {
		sctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
		audio, err = p.synthesizer.Synthesize(sctx, text)
		cancel()
		if err != nil {
			// A synthesis failure never discards a successful text reply.
			log.Warn().Err(err).Str("component", "pipeline").Msg("synthesis failed, returning text only")
			audio = nil
		}
	}
	return Reply{Text: text, Audio: audio}
}
