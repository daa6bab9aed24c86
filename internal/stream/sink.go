package stream

import (
	"context"

	"github.com/opendocs/chatstream/internal/message"
	"github.com/opendocs/chatstream/internal/pubsub"
)

// BrokerSink fans the consumer's output out to subscribers as message events.
// Snapshots arrive as updated events; the terminal message (final or error)
// arrives as a created event, distinguishable by its finish part.
type BrokerSink struct {
	broker *pubsub.Broker[message.Message]
}

var _ Sink = (*BrokerSink)(nil)

func NewBrokerSink() *BrokerSink {
	return &BrokerSink{broker: pubsub.NewBroker[message.Message]()}
}

func (s *BrokerSink) Subscribe(ctx context.Context) <-chan pubsub.Event[message.Message] {
	return s.broker.Subscribe(ctx)
}

func (s *BrokerSink) OnSnapshot(msg message.Message) {
	s.broker.Publish(message.EventMessageUpdated, msg)
}

func (s *BrokerSink) OnFinal(msg message.Message, responseID string) {
	msg.ResponseID = responseID
	s.broker.Publish(message.EventMessageCreated, msg)
}

func (s *BrokerSink) OnError(err error) {
	s.broker.Publish(message.EventMessageCreated, ErrorMessage(err))
}

func (s *BrokerSink) Shutdown() {
	s.broker.Shutdown()
}
