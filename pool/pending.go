package pool

import (
	"log/slog"
	"sync"
	"time"

	"github.com/andrew-w-ross/vscode-test-pool/internal/envelope"
	"github.com/andrew-w-ross/vscode-test-pool/internal/logger"
	"github.com/andrew-w-ross/vscode-test-pool/internal/scoped"
)

// pendingRequest is one outstanding ControlRequest awaiting its
// ControlResponse, implemented as a scoped.Future plus the timer that
// rejects it on expiry. Exclusively owned by its registry.
type pendingRequest struct {
	id     string
	action envelope.Action
	future *scoped.Future[envelope.ControlResponse]
	timer  *time.Timer
}

// pendingRegistry is the id-keyed map of outstanding control requests
// for one Worker connection.
type pendingRegistry struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
	log     *slog.Logger
}

func newPendingRegistry(log *slog.Logger) *pendingRegistry {
	return &pendingRegistry{entries: make(map[string]*pendingRequest), log: log}
}

// register inserts a new pendingRequest and arms its timeout timer.
// Returns the Future the caller awaits.
func (r *pendingRegistry) register(id string, action envelope.Action, timeout time.Duration) *scoped.Future[envelope.ControlResponse] {
	future := scoped.NewFuture[envelope.ControlResponse]()

	pr := &pendingRequest{id: id, action: action, future: future}
	pr.timer = time.AfterFunc(timeout, func() {
		r.takeTimeout(id)
	})

	r.mu.Lock()
	r.entries[id] = pr
	r.mu.Unlock()

	return future
}

// takeTimeout removes id if still pending and rejects its future with
// ErrControlRequestTimeout naming the action.
func (r *pendingRegistry) takeTimeout(id string) {
	r.mu.Lock()
	pr, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	pr.future.Reject(newTimeoutError(string(pr.action)))
}

// resolve looks up id; if present it clears the timer, removes the
// entry, and settles the future with resp. If absent, the response is a
// late or duplicate-id reply and is only logged.
func (r *pendingRegistry) resolve(resp envelope.ControlResponse) {
	r.mu.Lock()
	pr, ok := r.entries[resp.ID]
	if ok {
		delete(r.entries, resp.ID)
	}
	r.mu.Unlock()

	if !ok {
		r.log.Warn("late or unknown control response", logger.RequestID(resp.ID))
		return
	}

	pr.timer.Stop()
	if resp.Success {
		pr.future.Resolve(resp)
	} else {
		pr.future.Reject(&remoteError{requestID: resp.ID, message: resp.Error})
	}
}

// rejectAll settles every still-pending entry with err, used on socket
// close (ErrWorkerDisconnected) and on Stop (ErrWorkerStopped).
func (r *pendingRegistry) rejectAll(err error) {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*pendingRequest)
	r.mu.Unlock()

	for _, pr := range entries {
		pr.timer.Stop()
		pr.future.Reject(err)
	}
}

// len reports the current pending count, for tests.
func (r *pendingRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// remoteError wraps a ControlResponse's success=false, error="..." shape
// as a Go error, carrying the request id for diagnostics.
type remoteError struct {
	requestID string
	message   string
}

func (e *remoteError) Error() string {
	if e.message == "" {
		return "pool: request " + e.requestID + " failed"
	}
	return "pool: request " + e.requestID + " failed: " + e.message
}
