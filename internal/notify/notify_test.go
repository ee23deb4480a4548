package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-av/leadscan/internal/config"
	"github.com/meridian-av/leadscan/internal/resilience"
)

func fastWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2.0,
		},
	}
}

func TestWebhook_PostsJSON(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := fastWebhook(srv.URL).Notify(context.Background(), Notification{
		Recipient: "sales@example.com",
		Subject:   "Opportunity approved: Horizon Stadium",
		Body:      "details",
	})
	require.NoError(t, err)
	assert.Equal(t, "sales@example.com", got.Recipient)
	assert.Equal(t, "Opportunity approved: Horizon Stadium", got.Subject)
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := fastWebhook(srv.URL).Notify(context.Background(), Notification{Subject: "s"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhook_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := fastWebhook(srv.URL).Notify(context.Background(), Notification{Subject: "s"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestForConfig(t *testing.T) {
	assert.IsType(t, Nop{}, ForConfig(&config.NotifyConfig{}))
	assert.IsType(t, &Webhook{}, ForConfig(&config.NotifyConfig{WebhookURL: "https://hooks.example.com/x"}))
}

func TestNop_Succeeds(t *testing.T) {
	assert.NoError(t, Nop{}.Notify(context.Background(), Notification{Subject: "s"}))
}
