package scoped

import (
	"sort"
	"sync"
)

// Broadcaster fans a stream of values of type T out to zero or more
// subscribers, in arrival order of registration. It backs the pool's
// on/off subscription to raw socket messages and the worker runtime's
// WorkerHost.on/off RPC-channel subscription.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[int]func(T)
	nextID      int
	closed      bool
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subscribers: make(map[int]func(T))}
}

// Subscription is a token returned by On, passed back to Off to remove
// exactly that subscriber.
type Subscription int

// On registers cb to be invoked, in arrival order, for every value
// Published after this call returns. A subscriber registered after a
// value arrives never sees it.
func (b *Broadcaster[T]) On(cb func(T)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = cb
	return Subscription(id)
}

// Off removes a subscriber previously registered with On. Safe to call
// more than once or with an unknown token.
func (b *Broadcaster[T]) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, int(sub))
}

// Publish delivers value to every subscriber registered at the moment of
// the call. Callbacks run outside the broadcaster's lock, so a
// subscriber is free to call Off (even to remove itself) or Publish
// again from within its own callback without deadlocking.
func (b *Broadcaster[T]) Publish(value T) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	ids := make([]int, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	cbs := make([]func(T), 0, len(ids))
	for _, id := range ids {
		cbs = append(cbs, b.subscribers[id])
	}
	b.mu.RUnlock()

	for _, cb := range cbs {
		cb(value)
	}
}

// Teardown removes every subscriber and marks the broadcaster closed;
// further Publish calls are no-ops. Used when a WorkerHost wants to stop
// receiving RPC-channel traffic.
func (b *Broadcaster[T]) Teardown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[int]func(T))
	b.closed = true
}

// Len reports the current subscriber count, for tests.
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
