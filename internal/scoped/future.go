package scoped

import (
	"sync"
	"time"
)

// Future is a single-shot asynchronous result: exactly one of Resolve or
// Reject settles it, further calls are no-ops, and any number of
// goroutines may Await the outcome (a sync.Once guarding completion, a
// closed channel signaling it, and a timeout-bounded await variant).
type Future[T any] struct {
	once   sync.Once
	done   chan struct{}
	value  T
	err    error
}

// NewFuture returns an unsettled Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve settles the future successfully. Only the first call (Resolve
// or Reject) has any effect.
func (f *Future[T]) Resolve(value T) {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
}

// Reject settles the future with an error. Only the first call (Resolve
// or Reject) has any effect.
func (f *Future[T]) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Await blocks until the future settles and returns its outcome.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.value, f.err
}

// AwaitTimeout blocks until the future settles or timeout elapses,
// whichever comes first. A timeout does not settle the future; a later
// Resolve/Reject still succeeds and a subsequent Await observes it.
func (f *Future[T]) AwaitTimeout(timeout time.Duration) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-time.After(timeout):
		var zero T
		return zero, ErrTimeout
	}
}

// Done returns a channel closed once the future settles, for use in
// select statements alongside other events (e.g. socket close).
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsSettled reports whether the future has resolved or rejected, without
// blocking.
func (f *Future[T]) IsSettled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// AsyncHandle is the async counterpart to Handle: disposal is itself an
// operation that may take time (e.g. closing a socket and waiting for
// the peer to acknowledge), and concurrent Release calls share the one
// pending disposal instead of running it more than once.
type AsyncHandle struct {
	once    sync.Once
	future  *Future[struct{}]
	dispose func() error
}

// NewAsyncHandle acquires an async handle around dispose.
func NewAsyncHandle(dispose func() error) *AsyncHandle {
	if dispose == nil {
		dispose = func() error { return nil }
	}
	return &AsyncHandle{future: NewFuture[struct{}](), dispose: dispose}
}

// Release runs dispose at most once and returns its error. Concurrent
// callers block on the same underlying Future and observe the same
// result.
func (h *AsyncHandle) Release() error {
	h.once.Do(func() {
		err := h.dispose()
		if err != nil {
			h.future.Reject(err)
		} else {
			h.future.Resolve(struct{}{})
		}
	})
	_, err := h.future.Await()
	return err
}
