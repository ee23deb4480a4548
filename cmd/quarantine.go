package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-av/leadscan/internal/pipeline"
)

var quarantineLimit int

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect and requeue failed events",
}

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantined events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListQuarantine(ctx, quarantineLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}

var quarantineRequeueCmd = &cobra.Command{
	Use:   "requeue <id>",
	Short: "Return a quarantined event to the pending queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p := pipeline.New(st, nil, cfg)
		if err := p.Requeue(ctx, args[0]); err != nil {
			return err
		}
		zap.L().Info("event requeued", zap.String("id", args[0]))
		return nil
	},
}

func init() {
	quarantineListCmd.Flags().IntVar(&quarantineLimit, "limit", 100, "max entries to list")
	quarantineCmd.AddCommand(quarantineListCmd, quarantineRequeueCmd)
	rootCmd.AddCommand(quarantineCmd)
}
