package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/store"
)

func openStore(ctx context.Context, driver, url string) (store.Store, error) {
	switch driver {
	case "sqlite":
		if url == "" {
			url = "leadscan.db"
		}
		return store.NewSQLite(url)
	case "postgres":
		return store.NewPostgres(ctx, url)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", driver)
	}
}

// initStore opens and migrates the primary store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := openStore(ctx, cfg.Store.PrimaryDriver, cfg.Store.PrimaryURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// finishFailed records a run failure and returns the original error.
func finishFailed(ctx context.Context, st store.Store, runID string, cause error) error {
	if err := st.FinishRun(ctx, runID, model.RunStatusFailed, nil, cause.Error()); err != nil {
		zap.L().Warn("finish run", zap.String("run", runID), zap.Error(err))
	}
	return cause
}

// initMirror opens the optional secondary store that mirrors validation
// state. Returns nil when no secondary store is configured.
func initMirror(ctx context.Context) (store.Store, error) {
	if cfg.Store.SecondaryDriver == "" {
		return nil, nil
	}
	st, err := openStore(ctx, cfg.Store.SecondaryDriver, cfg.Store.SecondaryURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate mirror store")
	}
	return st, nil
}
