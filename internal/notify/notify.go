package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-av/leadscan/internal/config"
	"github.com/meridian-av/leadscan/internal/resilience"
)

// Notification is one outbound message about a validated opportunity.
type Notification struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Notifier delivers notifications. Delivery must be treated as
// at-most-once by callers: the validation store, not the notifier,
// guards against repeats.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Webhook posts notifications as JSON to a configured endpoint.
type Webhook struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
}

// NewWebhook builds a webhook notifier from config.
func NewWebhook(cfg *config.NotifyConfig) *Webhook {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Webhook{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
		retry:  resilience.DefaultRetryConfig(),
	}
}

func (w *Webhook) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "notify: marshal payload")
	}

	err = resilience.Do(ctx, w.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return eris.Wrap(err, "notify: build request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "notify: post"), 0)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body) //nolint:errcheck

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(
				eris.Errorf("notify: webhook returned %d", resp.StatusCode), resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return eris.Errorf("notify: webhook returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return err
	}

	zap.L().Debug("notification delivered",
		zap.String("recipient", n.Recipient),
		zap.String("subject", n.Subject))
	return nil
}

// Nop discards notifications. Used when no webhook is configured so the
// absorb stage can still mark decisions as processed.
type Nop struct{}

func (Nop) Notify(ctx context.Context, n Notification) error {
	zap.L().Info("notification suppressed (no webhook configured)",
		zap.String("subject", n.Subject))
	return nil
}

// ForConfig returns a webhook notifier when a URL is configured and a
// no-op notifier otherwise.
func ForConfig(cfg *config.NotifyConfig) Notifier {
	if cfg.WebhookURL == "" {
		return Nop{}
	}
	return NewWebhook(cfg)
}
