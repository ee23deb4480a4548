package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-av/leadscan/internal/config"
	"github.com/meridian-av/leadscan/internal/store"
)

func newServeStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func withTestConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestHealthz_ReportsConfiguredCollaborators(t *testing.T) {
	withTestConfig(t, &config.Config{
		Anthropic: config.AnthropicConfig{Key: "sk-test"},
		Reconcile: config.ReconcileConfig{ArtifactPath: "/tmp/validations.xlsx"},
	})
	st := newServeStore(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status     string          `json:"status"`
		Configured map[string]bool `json:"configured"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Configured["anthropic_key"])
	assert.True(t, body.Configured["artifact"])
	assert.False(t, body.Configured["webhook"])
	assert.False(t, body.Configured["mirror_store"])
}

func TestAPIIngest(t *testing.T) {
	withTestConfig(t, &config.Config{})
	st := newServeStore(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	payload := `{"url": "https://example.com/arena", "title": "Arena announced"}`
	resp, err := http.Post(srv.URL+"/api/ingest", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// The same URL again is a conflict, not an error.
	resp, err = http.Post(srv.URL+"/api/ingest", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/ingest", "application/json", strings.NewReader(`{"title": "no url"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConfiguredCollaborators(t *testing.T) {
	withTestConfig(t, &config.Config{
		Notify: config.NotifyConfig{WebhookURL: "https://hooks.example.com/x"},
		Store:  config.StoreConfig{SecondaryURL: "mirror.db"},
	})

	got := configuredCollaborators()
	assert.False(t, got["anthropic_key"])
	assert.False(t, got["artifact"])
	assert.True(t, got["webhook"])
	assert.True(t, got["mirror_store"])
}
