package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 64

type options struct {
	buffer int
	now    func() time.Time
}

// Option configures a Broker.
type Option func(*options)

// WithBufferSize sets how many undelivered events a subscriber may queue
// before further events to it are dropped.
func WithBufferSize(n int) Option {
	return func(o *options) { o.buffer = max(n, 1) }
}

// WithClock sets the source of event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type subscription[T any] struct {
	ch   chan Event[T]
	stop func() bool
}

// Broker fans events out to subscriber channels. Publish never blocks: a
// subscriber whose queue is full misses the event and the miss is counted.
type Broker[T any] struct {
	opts options

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]subscription[T]
	shut   bool

	dropped atomic.Uint64
}

var (
	_ Subscriber[string] = (*Broker[string])(nil)
	_ Publisher[string]  = (*Broker[string])(nil)
)

// NewBroker returns an open broker.
func NewBroker[T any](opts ...Option) *Broker[T] {
	o := options{buffer: DefaultBufferSize, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Broker[T]{opts: o, subs: make(map[uint64]subscription[T])}
}

// Subscribe returns a channel of events published from now on. It is closed
// when ctx ends or the broker closes. Subscribing to a closed broker yields
// an already closed channel.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	ch := make(chan Event[T], b.opts.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shut {
		close(ch)
		return ch
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = subscription[T]{
		ch:   ch,
		stop: context.AfterFunc(ctx, func() { b.unsubscribe(id) }),
	}
	return ch
}

func (b *Broker[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Publish delivers an event to every current subscriber.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	event := Event[T]{Type: eventType, Payload: payload, Timestamp: b.opts.now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close ends every subscription. Later publishes are no-ops.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shut {
		return
	}
	b.shut = true
	for id, sub := range b.subs {
		sub.stop()
		close(sub.ch)
		delete(b.subs, id)
	}
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped on full queues.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}
