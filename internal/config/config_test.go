package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.PrimaryDriver)
	assert.Equal(t, "sqlite", cfg.Store.SecondaryDriver)

	assert.Equal(t, 6, cfg.Scoring.MinLeadMonths)
	assert.Equal(t, 24, cfg.Scoring.MaxLeadMonths)
	assert.Equal(t, 10_000_000.0, cfg.Scoring.InvestmentThreshold)
	assert.Equal(t, 50, cfg.Scoring.OpportunityThreshold)
	assert.Equal(t, []string{"EMEA"}, cfg.Scoring.PreferredZones)

	assert.Equal(t, 0.90, cfg.Dedup.DuplicateThreshold)
	assert.Equal(t, 0.85, cfg.Dedup.SuspectThreshold)
	assert.Equal(t, 7, cfg.Dedup.CohortDays)
	assert.Equal(t, 365, cfg.Dedup.HistoricalDays)

	assert.Equal(t, "xlsx", cfg.Reconcile.ArtifactFormat)
	assert.Equal(t, "Opportunities", cfg.Reconcile.SheetName)

	assert.Equal(t, 24, cfg.Ingest.Hours)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LEADSCAN_SCORING_OPPORTUNITY_THRESHOLD", "60")
	t.Setenv("LEADSCAN_STORE_PRIMARY_DRIVER", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Scoring.OpportunityThreshold)
	assert.Equal(t, "sqlite", cfg.Store.PrimaryDriver)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "chatty", Format: "json"}))
}
