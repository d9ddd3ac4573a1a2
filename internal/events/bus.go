// Package events implements Quilt's in-process broadcast event bus.
//
// Go has no direct equivalent of a tokio broadcast channel, where every
// receiver shares one ring buffer and a lagging reader is told exactly
// how many events it skipped. Here each subscriber gets its own bounded
// channel plus a pending-lag counter: when the channel is full, Publish
// drops the oldest buffered event (never the new one) and records the
// drop, so the subscriber's next Recv reports Lagged(n) instead of an
// event and the stream resumes from the current head on the call after
// that.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscriber channel capacity used when a
// caller does not request a specific size.
const DefaultBufferSize = 128

// ErrClosed is returned by Recv once its subscription has been
// unsubscribed or the bus has been closed.
var ErrClosed = errors.New("events: subscription closed")

// LaggedError reports that a subscriber's buffer overflowed: N events
// were dropped (oldest first) before the stream resumed from the
// current head.
type LaggedError struct {
	N int
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("events: subscriber lagged, %d event(s) dropped", e.N)
}

// subscriber owns one bounded channel and the bookkeeping needed to
// surface Lagged(n) to its Recv caller on overflow.
type subscriber[T any] struct {
	ch     chan T
	mu     sync.Mutex // serializes the drop-oldest-and-retry path on overflow
	lagged atomic.Int64
}

// send delivers event, dropping the oldest buffered event and recording
// the drop when the channel is full. It never blocks the caller.
func (s *subscriber[T]) send(event T) (wasLagged bool) {
	select {
	case s.ch <- event:
		return false
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.ch <- event:
			return true
		default:
			select {
			case <-s.ch:
				s.lagged.Add(1)
			default:
				// A concurrent Recv drained a slot between our two
				// selects; loop and retry the send.
			}
		}
	}
}

// EventBus is a generic multi-subscriber, non-blocking broadcast bus.
type EventBus[T any] struct {
	mu         sync.RWMutex
	subs       map[uint64]*subscriber[T]
	nextID     uint64
	bufferSize int
	logger     *slog.Logger
}

// NewEventBus creates an EventBus with the given per-subscriber buffer
// size. A bufferSize <= 0 uses DefaultBufferSize.
func NewEventBus[T any](bufferSize int, logger *slog.Logger) *EventBus[T] {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus[T]{
		subs:       make(map[uint64]*subscriber[T]),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscription is one subscriber's cursor over the bus.
type Subscription[T any] struct {
	sub   *subscriber[T]
	unsub func()
}

// Recv blocks until the next event, ctx cancellation, or the
// subscription closing. If this subscriber's buffer overflowed since the
// last Recv, this call returns *LaggedError instead of an event and the
// drop counter resets to zero; the following Recv resumes from the
// current head.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	if n := s.sub.lagged.Swap(0); n > 0 {
		return zero, &LaggedError{N: int(n)}
	}
	select {
	case evt, ok := <-s.sub.ch:
		if !ok {
			return zero, ErrClosed
		}
		return evt, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Unsubscribe removes this subscription from the bus. Safe to call more
// than once.
func (s *Subscription[T]) Unsubscribe() {
	s.unsub()
}

// Subscribe registers a new subscriber and returns its Subscription along
// with a cleanup function equivalent to calling Subscription.Unsubscribe.
// The cleanup function must be called exactly once when the subscriber
// is done listening; it is safe to call from any goroutine and is
// idempotent.
func (b *EventBus[T]) Subscribe() (*Subscription[T], func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber[T]{ch: make(chan T, b.bufferSize)}
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			if existing, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(existing.ch)
			}
			b.mu.Unlock()
		})
	}
	subscription := &Subscription[T]{sub: sub, unsub: cleanup}
	return subscription, cleanup
}

// SubscriberCount returns the number of currently active subscribers.
func (b *EventBus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish fans event out to every subscriber. delivered counts the
// subscribers whose channel accepted the event without dropping anything;
// lagged counts those whose channel was full and had to drop their oldest
// buffered event to make room (the bus never blocks to wait for a slow
// subscriber). Publishing with zero subscribers is not an error — it is
// logged at debug level, matching the original bus's "warns, does not
// fail" policy.
func (b *EventBus[T]) Publish(event T) (delivered, lagged int) {
	b.mu.RLock()
	subs := make([]*subscriber[T], 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("publish with no subscribers")
		return 0, 0
	}

	for _, sub := range subs {
		if sub.send(event) {
			lagged++
		} else {
			delivered++
		}
	}
	if lagged > 0 {
		b.logger.Warn("event bus subscriber lagged", "lagged_count", lagged)
	}
	return delivered, lagged
}

// Close unsubscribes and closes every remaining subscriber channel. It is
// intended for orchestrator shutdown, not for per-subscriber cleanup.
func (b *EventBus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
