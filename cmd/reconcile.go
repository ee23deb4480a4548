package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/reconcile"
	"github.com/meridian-av/leadscan/internal/store"
)

var reconcileArtifact string

func runReconcile(cmd *cobra.Command, op func(context.Context, *reconcile.Engine, store.Store) (map[string]int, error)) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	mirror, err := initMirror(ctx)
	if err != nil {
		return err
	}
	if mirror != nil {
		defer mirror.Close()
	}

	if reconcileArtifact != "" {
		cfg.Reconcile.ArtifactPath = reconcileArtifact
	}

	var mirrorValidations store.ValidationStore
	if mirror != nil {
		mirrorValidations = mirror
	}
	engine, err := reconcile.New(st, mirrorValidations, &cfg.Reconcile, &cfg.Notify)
	if err != nil {
		return err
	}

	run, err := st.CreateRun(ctx, model.RunKindReconcile)
	if err != nil {
		return err
	}
	counts, err := op(ctx, engine, st)
	if err != nil {
		return finishFailed(ctx, st, run.ID, err)
	}
	if err := st.FinishRun(ctx, run.ID, model.RunStatusComplete, counts, ""); err != nil {
		zap.L().Warn("finish run", zap.String("run", run.ID), zap.Error(err))
	}
	return nil
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Append current opportunities to the validation document",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd, func(ctx context.Context, e *reconcile.Engine, _ store.Store) (map[string]int, error) {
			stats, err := e.Publish(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]int{"existing": stats.Existing, "added": stats.Added}, nil
		})
	},
}

var absorbCmd = &cobra.Command{
	Use:   "absorb",
	Short: "Record validator decisions and notify once per decided row",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd, func(ctx context.Context, e *reconcile.Engine, _ store.Store) (map[string]int, error) {
			stats, err := e.Absorb(ctx)
			if err != nil {
				return nil, err
			}
			for _, c := range stats.Conflicts {
				zap.L().Warn("merge conflict",
					zap.String("opportunity", c.OpportunityID),
					zap.String("decision", c.Decision))
			}
			return map[string]int{
				"absorbed":  stats.Absorbed,
				"notified":  stats.Notified,
				"pending":   stats.Pending,
				"conflicts": len(stats.Conflicts),
			}, nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Publish new opportunities then absorb decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd, func(ctx context.Context, e *reconcile.Engine, _ store.Store) (map[string]int, error) {
			pub, abs, err := e.Sync(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]int{
				"absorbed":  abs.Absorbed,
				"notified":  abs.Notified,
				"conflicts": len(abs.Conflicts),
				"added":     pub.Added,
			}, nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{publishCmd, absorbCmd, syncCmd} {
		c.Flags().StringVar(&reconcileArtifact, "artifact", "", "validation document path (default from config)")
		rootCmd.AddCommand(c)
	}
}
