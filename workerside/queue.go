package workerside

import (
	"context"
	"sync"

	"github.com/andrew-w-ross/vscode-test-pool/internal/envelope"
)

// commandQueue serializes run/collect/shutdown requests onto a single
// worker goroutine (buffered channel feeding one worker goroutine,
// sync.Once-guarded Close): a request arriving mid-processing waits
// behind it rather than re-entering the handler, so responses are
// emitted in the order their requests were received.
type commandQueue struct {
	ch      chan envelope.ControlRequest
	handle  func(envelope.ControlRequest)
	done    chan struct{}
	closeMu sync.Once
}

// newCommandQueue starts the single worker goroutine and returns the
// queue. handle is invoked for exactly one request at a time.
func newCommandQueue(bufferSize int, handle func(envelope.ControlRequest)) *commandQueue {
	q := &commandQueue{
		ch:     make(chan envelope.ControlRequest, bufferSize),
		handle: handle,
		done:   make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *commandQueue) worker() {
	defer close(q.done)
	for req := range q.ch {
		q.handle(req)
	}
}

// Enqueue admits req to the back of the queue. It never blocks the
// caller on processing, only on buffer capacity, matching the read
// loop's need to keep accepting frames off the socket while a
// long-running run/collect is in flight.
func (q *commandQueue) Enqueue(ctx context.Context, req envelope.ControlRequest) error {
	select {
	case q.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops admitting new requests and waits for the worker goroutine
// to drain whatever is already queued. Safe to call more than once.
func (q *commandQueue) Close() {
	q.closeMu.Do(func() {
		close(q.ch)
	})
	<-q.done
}
