package main

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/charla-ai/charla/pkg/config"
	"github.com/charla-ai/charla/pkg/rag"
	"github.com/charla-ai/charla/pkg/store"
)

func newSeedCommand() *cobra.Command {
	var personasPath string
	var docsDir string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load persona reference data and index background documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), personasPath, docsDir)
		},
	}
	cmd.Flags().StringVar(&personasPath, "personas", "", "YAML file of personas to upsert")
	cmd.Flags().StringVar(&docsDir, "docs", "", "directory of .txt/.md background documents to index")
	return cmd
}

func runSeed(ctx context.Context, personasPath, docsDir string) error {
	if personasPath == "" && docsDir == "" {
		return errors.New("nothing to do: pass --personas and/or --docs")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if personasPath != "" {
		st, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		personas, err := store.LoadPersonaSeedFile(personasPath)
		if err != nil {
			return err
		}
		if err := st.SeedPersonas(ctx, personas); err != nil {
			return err
		}
		log.Info().Int("personas", len(personas)).Msg("persona reference data loaded")
	}

	if docsDir != "" {
		if cfg.EmbeddingsAPIKey == "" {
			return errors.New("indexing documents requires CHARLA_EMBEDDINGS_API_KEY")
		}
		embedFn := chromem.NewEmbeddingFuncOpenAICompat(
			cfg.EmbeddingsBaseURL, cfg.EmbeddingsAPIKey, cfg.EmbeddingsModel, nil)
		ragStore, err := rag.New(cfg.DataDir, embedFn, cfg.TopK)
		if err != nil {
			return err
		}
		n, err := ragStore.IngestDir(ctx, docsDir)
		if err != nil {
			return err
		}
		log.Info().Int("passages", n).Msg("background documents indexed")
	}
	return nil
}
