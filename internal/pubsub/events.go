package pubsub

import "context"

// EventType tags what happened to the payload. Domain packages may define
// their own types (message updates, log entries); these three cover the
// common lifecycle.
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"
)

// Event is one published occurrence carrying its payload by value, so
// subscribers can never mutate each other's view of it.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// Subscriber is the read side: the returned channel delivers events until
// ctx is cancelled or the broker shuts down, then closes.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher is the write side.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
