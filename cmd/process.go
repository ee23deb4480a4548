package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-av/leadscan/internal/extract"
	"github.com/meridian-av/leadscan/internal/pipeline"
	"github.com/meridian-av/leadscan/internal/store"
	anthropicpkg "github.com/meridian-av/leadscan/pkg/anthropic"
)

func initPipeline(ctx context.Context) (*pipeline.Pipeline, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Anthropic.Key == "" {
		st.Close()
		return nil, nil, eris.New("anthropic API key is required (LEADSCAN_ANTHROPIC_KEY)")
	}
	ai := anthropicpkg.NewClient(cfg.Anthropic.Key)
	extractor := extract.NewClaude(ai, &cfg.Anthropic)

	return pipeline.New(st, extractor, cfg), st, nil
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Extract business fields for pending events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		_, err = p.Enrich(ctx)
		return err
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score enriched records that have no verdict yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Analysis never calls the extraction API, so it only needs the store.
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p := pipeline.New(st, nil, cfg)
		_, err = p.Analyze(ctx)
		return err
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run enrichment then analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		enriched, analyzed, err := p.Process(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("process finished",
			zap.Int("enriched", enriched.Processed),
			zap.Int("quarantined", enriched.Quarantined),
			zap.Int("scored", analyzed.Processed))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd, analyzeCmd, processCmd)
}
