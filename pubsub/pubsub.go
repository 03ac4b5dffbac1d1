// Package pubsub implements the room's typed notification channels.
// SPEC_FULL.md §4.8 (restating spec.md's own §9 design note) rejects a
// single overloaded subscribe(target, callback) in favor of one
// distinctly-named, distinctly-typed method per subscription kind — the
// compiler enforces the callback shape instead of a runtime type switch.
package pubsub

import "sync"

// Unsubscribe cancels a subscription. Calling it more than once is a
// no-op.
type Unsubscribe func()

// Topic is a generic registry of callbacks taking one payload type T,
// each with its own unsubscribe handle. It's the shared machinery behind
// every named Subscribe* method on Room. Room keeps its Topics in
// unexported fields, so the named wrappers are the API surface callers
// of Room see (SPEC_FULL.md §4.8).
type Topic[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]func(T)
}

// NewTopic returns an empty Topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{listeners: map[uint64]func(T){}}
}

// Subscribe registers fn and returns a handle to remove it.
func (t *Topic[T]) Subscribe(fn func(T)) Unsubscribe {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
		})
	}
}

// Emit calls every current subscriber with payload, in no particular
// guaranteed order. Emit takes a snapshot of the listener set before
// calling out, so a listener unsubscribing itself (or another listener)
// mid-emit never panics or skips a callback that was live when Emit
// started.
func (t *Topic[T]) Emit(payload T) {
	t.mu.Lock()
	snapshot := make([]func(T), 0, len(t.listeners))
	for _, fn := range t.listeners {
		snapshot = append(snapshot, fn)
	}
	t.mu.Unlock()

	for _, fn := range snapshot {
		fn(payload)
	}
}

// Len reports the current subscriber count, mainly for tests.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}
