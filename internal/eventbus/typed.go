package eventbus

import "sync"

// TypedBus fans values of type T out to subscribers. The last published
// value is retained and handed to new subscribers. A subscriber that falls
// behind loses its oldest pending value, never the newest.
type TypedBus[T any] struct {
	mu       sync.RWMutex
	subs     []chan T
	buffer   int
	latest   T
	hasValue bool
	closed   bool
}

// NewTyped creates a bus whose subscriber channels hold up to 8 values.
func NewTyped[T any]() *TypedBus[T] { return NewTypedWithBuffer[T](8) }

// NewTypedWithBuffer creates a bus with the given per subscriber buffer,
// at least one.
func NewTypedWithBuffer[T any](buffer int) *TypedBus[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &TypedBus[T]{buffer: buffer}
}

// Publish records e as the latest value and delivers it without blocking.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest, b.hasValue = e, true
	for _, ch := range b.subs {
		offer(ch, e)
	}
}

// offer sends e, evicting the oldest pending value when ch is full. Callers
// hold the write lock so no other publisher races for the freed slot.
func offer[T any](ch chan T, e T) {
	for {
		select {
		case ch <- e:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Latest returns the last published value.
func (b *TypedBus[T]) Latest() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.hasValue
}

// Subscribe registers a subscriber. The retained value, if any, is queued
// first.
func (b *TypedBus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	if b.hasValue {
		ch <- b.latest
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
