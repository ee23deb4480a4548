package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-av/leadscan/internal/config"
	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/resilience"
	"github.com/meridian-av/leadscan/pkg/anthropic"
)

type fakeAI struct {
	response string
	err      error
	requests []anthropic.MessageRequest
}

func (f *fakeAI) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.response}},
	}, nil
}

func extractorConfig() *config.AnthropicConfig {
	return &config.AnthropicConfig{
		Model:           "claude-sonnet-4-5",
		MaxTokens:       2048,
		RequestsPerMin:  600,
		TimeoutSecs:     5,
		MaxContentChars: 10,
	}
}

func TestExtract_ParsesFencedResponse(t *testing.T) {
	ai := &fakeAI{response: "```json\n" + fullPayload + "\n```"}
	ex := NewClaude(ai, extractorConfig())

	ev := model.RawEvent{ID: "e1", Title: "Stadium announced", Body: "a very long article body"}
	fields, err := ex.Extract(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, "Horizon Stadium", fields.VenueName)
	assert.Equal(t, model.PhaseAnnounced, fields.ProjectPhase)
}

func TestExtract_TruncatesBody(t *testing.T) {
	ai := &fakeAI{response: fullPayload}
	ex := NewClaude(ai, extractorConfig())

	ev := model.RawEvent{ID: "e1", Title: "t", Body: "0123456789ABCDEF"}
	_, err := ex.Extract(context.Background(), ev)
	require.NoError(t, err)

	require.Len(t, ai.requests, 1)
	content := ai.requests[0].Messages[0].Content
	assert.Contains(t, content, "0123456789")
	assert.NotContains(t, content, "ABCDEF")
}

func TestExtract_SchemaViolationSurfaces(t *testing.T) {
	ai := &fakeAI{response: `{"venue_name": "only one key"}`}
	ex := NewClaude(ai, extractorConfig())

	_, err := ex.Extract(context.Background(), model.RawEvent{ID: "e1", Title: "t"})
	require.Error(t, err)
	assert.True(t, resilience.IsSchemaViolation(err))
}

func TestExtract_EmptyResponse(t *testing.T) {
	ai := &fakeAI{response: ""}
	ex := NewClaude(ai, extractorConfig())

	_, err := ex.Extract(context.Background(), model.RawEvent{ID: "e1", Title: "t"})
	assert.Error(t, err)
}
