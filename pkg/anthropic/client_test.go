package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "extract this"},
		{Role: "assistant", Content: "{}"},
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
}

func TestToSDKSystemBlocks_CacheControl(t *testing.T) {
	blocks := toSDKSystemBlocks([]SystemBlock{
		{Text: "prompt", CacheControl: &CacheControl{TTL: "5m"}},
		{Text: "plain"},
	})

	require.Len(t, blocks, 2)
	assert.Equal(t, "prompt", blocks[0].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("5m"), blocks[0].CacheControl.TTL)
	assert.Equal(t, "plain", blocks[1].Text)
}

func TestFromSDKMessage(t *testing.T) {
	msg := &sdk.Message{
		ID:         "msg_1",
		Model:      "claude-haiku-4-5-20251001",
		StopReason: "end_turn",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: `{"venue_name": ""}`},
		},
		Usage: sdk.Usage{InputTokens: 100, OutputTokens: 50},
	}

	resp := fromSDKMessage(msg)

	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, `{"venue_name": ""}`, resp.Content[0].Text)
	assert.Equal(t, int64(100), resp.Usage.InputTokens)
}
