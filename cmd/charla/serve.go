package main

import (
	"context"
	"os/signal"
	"syscall"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/charla-ai/charla/pkg/chat"
	"github.com/charla-ai/charla/pkg/config"
	"github.com/charla-ai/charla/pkg/gateway"
	"github.com/charla-ai/charla/pkg/llm"
	"github.com/charla-ai/charla/pkg/rag"
	"github.com/charla-ai/charla/pkg/speech"
	"github.com/charla-ai/charla/pkg/store"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	generator, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return errors.Wrap(err, "set CHARLA_GEMINI_API_KEY to enable generation")
	}

	// Retrieval and speech are optional enrichment; the pipeline degrades
	// gracefully without them.
	var retriever chat.Retriever
	if cfg.EmbeddingsAPIKey != "" {
		embedFn := chromem.NewEmbeddingFuncOpenAICompat(
			cfg.EmbeddingsBaseURL, cfg.EmbeddingsAPIKey, cfg.EmbeddingsModel, nil)
		ragStore, err := rag.New(cfg.DataDir, embedFn, cfg.TopK)
		if err != nil {
			return err
		}
		retriever = ragStore
	} else {
		log.Warn().Msg("no embeddings API key configured, context retrieval disabled")
	}

	var synthesizer chat.Synthesizer
	var transcriber chat.Transcriber
	if cfg.ElevenLabsAPIKey != "" {
		speechClient, err := speech.NewClient(cfg.ElevenLabsAPIKey, speech.WithVoice(cfg.ElevenLabsVoice))
		if err != nil {
			return err
		}
		synthesizer = speechClient
		transcriber = speechClient
	} else {
		log.Warn().Msg("no ElevenLabs API key configured, speech synthesis and transcription disabled")
	}

	pipeline := chat.NewPipeline(
		retriever,
		chat.NewComposer(cfg.MaxPromptTokens),
		generator,
		synthesizer,
		chat.PipelineOptions{
			MaxOutputTokens: cfg.MaxOutputTokens,
			StageTimeout:    cfg.CallTimeout,
		},
	)

	srv := gateway.NewServer(ctx, gateway.Options{Addr: cfg.Addr}, st, gateway.Services{
		Resolver:    chat.NewResolver(st),
		History:     chat.NewHistory(st, cfg.MaxHistory),
		Pipeline:    pipeline,
		Recorder:    chat.NewRecorder(st),
		Transcriber: transcriber,
		CallTimeout: cfg.CallTimeout,
	})
	return srv.Run(ctx)
}
