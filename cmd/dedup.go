package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-av/leadscan/internal/dedup"
	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/similarity"
)

var dedupCohortLimit int

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Classify newly scored records against prior coverage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.CreateRun(ctx, model.RunKindDedup)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		cohortSince := now.AddDate(0, 0, -cfg.Dedup.CohortDays)
		historicalSince := now.AddDate(0, 0, -cfg.Dedup.HistoricalDays)

		cohort, err := st.ListCohort(ctx, cohortSince, dedupCohortLimit)
		if err != nil {
			return finishFailed(ctx, st, run.ID, err)
		}
		historical, err := st.ListHistorical(ctx, historicalSince)
		if err != nil {
			return finishFailed(ctx, st, run.ID, err)
		}

		engine := dedup.New(&cfg.Dedup, similarity.Lexical())
		relations, err := engine.Deduplicate(ctx, run.ID, cohort, historical)
		if err != nil {
			return finishFailed(ctx, st, run.ID, err)
		}

		saved, err := st.SaveRelations(ctx, relations)
		if err != nil {
			return finishFailed(ctx, st, run.ID, err)
		}

		counts := map[string]int{
			"cohort":     len(cohort),
			"historical": len(historical),
			"classified": len(relations),
			"saved":      int(saved),
		}
		if err := st.FinishRun(ctx, run.ID, model.RunStatusComplete, counts, ""); err != nil {
			zap.L().Warn("finish run", zap.String("run", run.ID), zap.Error(err))
		}

		zap.L().Info("dedup finished",
			zap.Int("cohort", len(cohort)),
			zap.Int("classified", len(relations)),
			zap.Int64("saved", saved))
		return nil
	},
}

func init() {
	dedupCmd.Flags().IntVar(&dedupCohortLimit, "limit", 500, "max cohort records per run")
	rootCmd.AddCommand(dedupCmd)
}
