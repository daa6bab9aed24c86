package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendContent(t *testing.T) {
	t.Parallel()

	msg := New(Assistant)
	msg.AppendContent("Hel")
	msg.AppendContent("lo")

	assert.Equal(t, "Hello", msg.Content().String())
	assert.Len(t, msg.Parts, 1, "fragments should merge into a single text part")
}

func TestAddFinishIsIdempotent(t *testing.T) {
	t.Parallel()

	msg := New(Assistant, TextContent{Text: "done"})
	assert.True(t, msg.IsStreaming())

	msg.AddFinish(FinishReasonEndTurn)
	msg.AddFinish(FinishReasonError)

	require.NotNil(t, msg.FinishPart())
	assert.Equal(t, FinishReasonEndTurn, msg.FinishReason(), "first finish wins")
	assert.False(t, msg.IsStreaming())
}

func TestSetToolCallsReplaces(t *testing.T) {
	t.Parallel()

	msg := New(Assistant, TextContent{Text: "checking"})
	msg.AddToolCall(ToolCall{Name: "search", Status: ToolCallStatusPending})
	msg.SetToolCalls([]ToolCall{
		{ID: "call_1", Name: "search", Status: ToolCallStatusCompleted},
	})

	calls := msg.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "checking", msg.Content().String())
}

func TestPartsRoundTrip(t *testing.T) {
	t.Parallel()

	parts := []ContentPart{
		TextContent{Text: "Source: handbook.pdf"},
		ToolCall{
			ID:        "call_9",
			Name:      "Retrieval",
			Input:     `{"query":"vacation policy"}`,
			Arguments: map[string]any{"query": "vacation policy"},
			Status:    ToolCallStatusCompleted,
		},
		ToolResult{ToolCallID: "call_9", Content: "3 documents"},
	}

	data, err := MarshalParts(parts)
	require.NoError(t, err)

	decoded, err := UnmarshalParts(data)
	require.NoError(t, err)
	require.Len(t, decoded, 3)

	call, ok := decoded[1].(ToolCall)
	require.True(t, ok)
	assert.Equal(t, "Retrieval", call.Name)
	assert.Equal(t, ToolCallStatusCompleted, call.Status)
	assert.True(t, call.Terminal())
}
