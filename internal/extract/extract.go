// Package extract wraps the external text-to-fields capability. From the
// pipeline's viewpoint an Extractor is a pure function: event text and
// metadata in, a fixed-schema field set or an explicit failure out. Its
// internal heuristics are opaque.
package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/meridian-av/leadscan/internal/config"
	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/resilience"
	"github.com/meridian-av/leadscan/pkg/anthropic"
)

// Extractor maps a raw event to the fixed business-field schema.
type Extractor interface {
	Extract(ctx context.Context, ev model.RawEvent) (model.BusinessFields, error)
}

// systemPrompt instructs the model to emit the full schema with explicit
// absence markers so downstream logic stays total.
const systemPrompt = `You extract structured business facts about venue and construction projects from news articles for an audio-systems integration company.

Return ONLY a JSON object with EVERY one of these keys (use "" for unknown strings, null for unknown numbers and dates, [] for unknown lists):
{
  "venue_name": "", "city": "", "country": "", "zone": "",
  "venue_type": "", "capacity": null, "project_type": "",
  "project_phase": "", "opening_year": null, "opening_date": null,
  "investment": null, "investment_currency": "",
  "investor_owner_management": [], "architect_consultant_contractor": [],
  "competitor_main": "", "competitor_other": [],
  "key_products_installed": "", "notes": ""
}

Rules:
- zone is one of "EMEA", "AMERICAS", "APAC" or "".
- venue_type is a short lowercase category such as "stadium", "arena", "concert hall", "theater", "convention center", "hotel", "museum".
- project_phase is one of: announced, planning, design, approved, tender, groundbreaking, construction_early, construction_mid, construction_late, completed, operational. Use "" when unclear.
- opening_date is ISO 8601 (YYYY-MM-DD) or null.
- investment is a plain number in the article's currency; investment_currency is its ISO code.
- The article may be in any language; answer in English but keep proper names as written.
- Never invent facts absent from the article.`

// ClaudeExtractor implements Extractor on the Anthropic message API,
// rate-limited to stay under the provider's request budget.
type ClaudeExtractor struct {
	ai      anthropic.Client
	cfg     *config.AnthropicConfig
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClaude creates a rate-limited Claude-backed extractor.
func NewClaude(ai anthropic.Client, cfg *config.AnthropicConfig) *ClaudeExtractor {
	rps := cfg.RequestsPerMin / 60
	if rps <= 0 {
		rps = 0.2
	}
	return &ClaudeExtractor{
		ai:      ai,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
}

// Extract sends the event to the model and validates the returned schema.
func (e *ClaudeExtractor) Extract(ctx context.Context, ev model.RawEvent) (model.BusinessFields, error) {
	var fields model.BusinessFields

	if err := e.limiter.Wait(ctx); err != nil {
		return fields, eris.Wrap(err, "extract: rate limit wait")
	}

	timeout := time.Duration(e.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := resilience.DoVal(callCtx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.cfg.Model,
			MaxTokens: e.cfg.MaxTokens,
			System:    []anthropic.SystemBlock{{Text: systemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}}},
			Messages:  []anthropic.Message{{Role: "user", Content: buildPayload(ev, e.cfg.MaxContentChars)}},
		})
	})
	if err != nil {
		return fields, eris.Wrap(err, "extract: model call")
	}
	resp.Usage.LogUsage(e.cfg.Model, "enrich")

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return fields, eris.New("extract: empty model response")
	}

	return ParseFields([]byte(CleanJSON(text)))
}

// buildPayload serializes the event for the model, truncating the body to
// keep token usage bounded.
func buildPayload(ev model.RawEvent, maxChars int) string {
	body := ev.Body
	if maxChars > 0 && len(body) > maxChars {
		body = body[:maxChars]
	}
	payload := map[string]any{
		"title":     ev.Title,
		"content":   body,
		"url":       ev.URL,
		"origin":    ev.Origin,
		"language":  ev.Language,
		"published": ev.PublishedAt.UTC().Format(time.RFC3339),
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

// CleanJSON strips markdown code fences the model sometimes wraps around its
// JSON output.
func CleanJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = content[7:]
	} else if strings.HasPrefix(content, "```") {
		content = content[3:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
