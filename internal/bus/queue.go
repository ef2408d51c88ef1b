package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrTimeout is returned by Pop when no item arrives before the deadline.
// Consumers treat it as "no work, poll again", not as a fault.
var ErrTimeout = errors.New("bus: pop timed out")

// Queue is an unbounded FIFO queue with a non-blocking Push and an
// awaitable Pop. Waiting consumers are served in arrival order.
// There is no depth limit; sustained overload grows the backlog.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	waiters []chan T
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push enqueues an item without blocking. If a consumer is waiting, the
// item is handed to the first waiter directly.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		// Buffered by 1, so this never blocks. A waiter racing its own
		// timeout re-checks the channel before reporting ErrTimeout.
		w <- item
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Pop waits until an item is available or ctx expires. A deadline or
// cancellation yields ErrTimeout.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	q.mu.Lock()
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return item, nil
	}

	w := make(chan T, 1)
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case item := <-w:
		return item, nil
	case <-ctx.Done():
		q.abandon(w)
		// The item may have been handed over in the race with ctx.Done.
		select {
		case item := <-w:
			return item, nil
		default:
		}
		var zero T
		return zero, ErrTimeout
	}
}

// abandon removes a waiter that stopped listening.
func (q *Queue[T]) abandon(w chan T) {
	q.mu.Lock()
	for i, cand := range q.waiters {
		if cand == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// MessageBus routes messages between channel adapters and the agent core.
// Two independent queues compose the bus; there is no cross-queue ordering
// guarantee.
type MessageBus struct {
	inbound  *Queue[InboundMessage]
	outbound *Queue[OutboundMessage]

	mu          sync.RWMutex
	subscribers map[string][]func(OutboundMessage)
}

// NewMessageBus creates a new message bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:     NewQueue[InboundMessage](),
		outbound:    NewQueue[OutboundMessage](),
		subscribers: make(map[string][]func(OutboundMessage)),
	}
}

// PublishInbound sends a message from a channel to the agent.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound.Push(msg)
}

// PublishOutbound sends a response from the agent to channels.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound.Push(msg)
}

// ConsumeInbound pops the next inbound message, waiting until ctx expires.
// Returns ErrTimeout when idle.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, error) {
	return b.inbound.Pop(ctx)
}

// ConsumeOutbound pops the next outbound message, waiting until ctx expires.
// Returns ErrTimeout when idle.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, error) {
	return b.outbound.Pop(ctx)
}

// Subscribe registers a callback for outbound messages on a specific channel.
func (b *MessageBus) Subscribe(channel string, callback func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], callback)
}

// DispatchOutbound runs the outbound dispatch loop. Blocks until ctx is
// cancelled.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		msg, err := b.outbound.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		b.mu.RLock()
		subs := b.subscribers[msg.Channel]
		b.mu.RUnlock()
		for _, cb := range subs {
			cb(msg)
		}
	}
}

// InboundSize returns the number of pending inbound messages.
func (b *MessageBus) InboundSize() int {
	return b.inbound.Len()
}

// OutboundSize returns the number of pending outbound messages.
func (b *MessageBus) OutboundSize() int {
	return b.outbound.Len()
}
