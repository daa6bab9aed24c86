package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultChannelBufferSize = 100

// subscriber pairs an event channel with the bookkeeping needed to close it
// safely: done stops in-flight fallback sends, pending counts them, and the
// channel is only closed once both say no send can still be running.
type subscriber[T any] struct {
	ch      chan Event[T]
	done    chan struct{}
	pending sync.WaitGroup
}

// Broker fans events out to context-scoped subscribers. Snapshot and final
// message delivery in this codebase rides on it, so publishes must never
// block the streaming goroutine, and tearing a subscriber down mid-stream
// must never race a publish into a closed channel.
type Broker[T any] struct {
	subs     map[*subscriber[T]]context.CancelFunc
	mu       sync.RWMutex
	isClosed bool
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[*subscriber[T]]context.CancelFunc),
	}
}

func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	if b.isClosed {
		b.mu.Unlock()
		return
	}
	b.isClosed = true

	subs := make([]*subscriber[T], 0, len(b.subs))
	for sub, cancel := range b.subs {
		cancel()
		subs = append(subs, sub)
		delete(b.subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.teardown()
	}
	slog.Debug("PubSub broker shut down", "type", fmt.Sprintf("%T", *new(T)))
}

// Subscribe registers a new subscriber whose channel is closed when ctx is
// cancelled or the broker shuts down.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed {
		closedCh := make(chan Event[T])
		close(closedCh)
		return closedCh
	}

	subCtx, subCancel := context.WithCancel(ctx)
	sub := &subscriber[T]{
		ch:   make(chan Event[T], defaultChannelBufferSize),
		done: make(chan struct{}),
	}
	b.subs[sub] = subCancel

	go func() {
		<-subCtx.Done()
		b.remove(sub)
	}()

	return sub.ch
}

// remove detaches sub so no new publish can reach it, then tears it down.
// Shutdown may have already detached it; only the side that deletes the map
// entry runs the teardown, so the channel is closed exactly once.
func (b *Broker[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, sub)
	b.mu.Unlock()

	sub.teardown()
}

// teardown releases any fallback sends parked on this subscriber, waits for
// them to finish, and only then closes the channel. Sends start only while
// the subscriber is still in the map, so after the delete the pending count
// can only go down.
func (s *subscriber[T]) teardown() {
	close(s.done)
	s.pending.Wait()
	close(s.ch)
}

func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.isClosed {
		slog.Warn("Attempted to publish on a closed pubsub broker", "type", eventType, "payload_type", fmt.Sprintf("%T", payload))
		return
	}

	event := Event[T]{Type: eventType, Payload: payload}

	for sub := range b.subs {
		// Non-blocking send with a goroutine fallback so a slow subscriber
		// cannot stall the publisher. The pending count is raised under the
		// read lock, while the subscriber is still registered; the fallback
		// bails out via done when the subscriber goes away first.
		select {
		case sub.ch <- event:
		default:
			sub.pending.Add(1)
			go func(sub *subscriber[T], ev Event[T]) {
				defer sub.pending.Done()
				select {
				case sub.ch <- ev:
				case <-sub.done:
				case <-time.After(2 * time.Second):
					slog.Warn("PubSub: Dropped event for slow subscriber after timeout", "type", ev.Type)
				}
			}(sub, event)
		}
	}
}

func (b *Broker[T]) GetSubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
