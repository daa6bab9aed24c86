package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendocs/chatstream/internal/message"
	"github.com/opendocs/chatstream/internal/pubsub"
)

func nextEvent(t *testing.T, ch <-chan pubsub.Event[message.Message]) pubsub.Event[message.Message] {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return pubsub.Event[message.Message]{}
	}
}

func TestBrokerSinkPublishesSnapshotsAndFinal(t *testing.T) {
	sink := NewBrokerSink()
	defer sink.Shutdown()
	ch := sink.Subscribe(t.Context())

	snap := message.New(message.Assistant, message.TextContent{Text: "partial"})
	sink.OnSnapshot(snap)

	event := nextEvent(t, ch)
	assert.Equal(t, message.EventMessageUpdated, event.Type)
	assert.True(t, event.Payload.IsStreaming())

	final := message.New(message.Assistant, message.TextContent{Text: "done"})
	final.AddFinish(message.FinishReasonEndTurn)
	sink.OnFinal(final, "resp_1")

	event = nextEvent(t, ch)
	assert.Equal(t, message.EventMessageCreated, event.Type)
	assert.Equal(t, "resp_1", event.Payload.ResponseID)
	assert.False(t, event.Payload.IsStreaming())
}

func TestBrokerSinkRendersErrors(t *testing.T) {
	sink := NewBrokerSink()
	defer sink.Shutdown()
	ch := sink.Subscribe(t.Context())

	sink.OnError(&Error{Kind: ErrorKindStallTimeout})

	event := nextEvent(t, ch)
	require.Equal(t, message.EventMessageCreated, event.Type)
	assert.Equal(t, message.FinishReasonError, event.Payload.FinishReason())
	assert.Contains(t, event.Payload.Content().Text, "took too long")
}
