// Package chat contains the per-message orchestration core: identifier
// resolution, history windowing, prompt composition, the response pipeline and
// the persistence recorder. External AI services are consumed through the
// narrow interfaces below so they can be swapped for fakes in tests.
package chat

import (
	"context"

	"github.com/charla-ai/charla/pkg/model"
)

// Retriever maps a user utterance to a short block of relevant background
// text. Retrieval is best-effort enrichment: implementations swallow every
// failure and return "" instead of an error.
type Retriever interface {
	Retrieve(ctx context.Context, query string) string
}

// Generator produces a reply from a system instruction and an ordered turn
// list, bounded to maxTokens of output.
type Generator interface {
	Generate(ctx context.Context, system string, turns []model.Turn, maxTokens int) (string, error)
}

// Synthesizer converts reply text to binary audio. It must never be called
// with empty or whitespace-only text; the pipeline enforces that.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcriber converts binary audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}
