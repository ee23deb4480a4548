package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-av/leadscan/internal/ingest"
)

var (
	ingestFeedsFile string
	ingestHours     int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull recent items from configured feeds into the event store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if ingestFeedsFile != "" {
			cfg.Ingest.FeedsFile = ingestFeedsFile
		}
		if ingestHours > 0 {
			cfg.Ingest.Hours = ingestHours
		}

		feeds, err := ingest.LoadFeeds(cfg.Ingest.FeedsFile)
		if err != nil {
			return err
		}

		stats, err := ingest.New(st, &cfg.Ingest).Run(ctx, feeds)
		if err != nil {
			return eris.Wrap(err, "ingest run")
		}

		zap.L().Info("ingest finished",
			zap.Int("feeds", len(feeds)),
			zap.Int("inserted", stats.Inserted))
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFeedsFile, "feeds", "", "feeds YAML file (default from config)")
	ingestCmd.Flags().IntVar(&ingestHours, "hours", 0, "ingest window in hours (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
