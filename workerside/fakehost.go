package workerside

import (
	"context"
	"sync"

	"github.com/andrew-w-ross/vscode-test-pool/internal/envelope"
)

// FakeHost is a TestRunnerHost stand-in that records every Setup/Run/
// Collect invocation instead of driving a real in-editor test runner.
// It lets Run be exercised end-to-end, in tests and in cmd/worker-entry's
// demo, without an actual editor extension host present.
type FakeHost struct {
	mu          sync.Mutex
	bridge      *WorkerHost
	ranSessions []envelope.SerializedSession
	collected   []envelope.SerializedSession
	runErr      error
	collectErr  error
	teardownErr error
	torndown    bool

	workerModulePath string
}

// NewFakeHost returns a FakeHost that succeeds on every call.
func NewFakeHost() *FakeHost {
	return &FakeHost{}
}

// WithRunError makes every subsequent RunTests call fail with err.
func (h *FakeHost) WithRunError(err error) *FakeHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runErr = err
	return h
}

// WithCollectError makes every subsequent CollectTests call fail with
// err.
func (h *FakeHost) WithCollectError(err error) *FakeHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.collectErr = err
	return h
}

func (h *FakeHost) Setup(ctx context.Context, bridge *WorkerHost) (func(context.Context) error, error) {
	h.mu.Lock()
	h.bridge = bridge
	h.workerModulePath = bridge.WorkerModulePath()
	h.mu.Unlock()
	return func(context.Context) error {
		h.mu.Lock()
		h.torndown = true
		h.mu.Unlock()
		return h.teardownErr
	}, nil
}

func (h *FakeHost) RunTests(ctx context.Context, session envelope.SerializedSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ranSessions = append(h.ranSessions, session)
	return h.runErr
}

func (h *FakeHost) CollectTests(ctx context.Context, session envelope.SerializedSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.collected = append(h.collected, session)
	return h.collectErr
}

// RanSessions returns the sessions RunTests was called with, in order.
func (h *FakeHost) RanSessions() []envelope.SerializedSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]envelope.SerializedSession, len(h.ranSessions))
	copy(out, h.ranSessions)
	return out
}

// CollectedSessions returns the sessions CollectTests was called with,
// in order.
func (h *FakeHost) CollectedSessions() []envelope.SerializedSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]envelope.SerializedSession, len(h.collected))
	copy(out, h.collected)
	return out
}

// Torndown reports whether the Setup teardown thunk ran.
func (h *FakeHost) Torndown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.torndown
}

// Bridge returns the WorkerHost bridge passed to Setup, or nil if Setup
// has not been called yet.
func (h *FakeHost) Bridge() *WorkerHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bridge
}

// WorkerModulePath returns the sibling module path observed at Setup.
func (h *FakeHost) WorkerModulePath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.workerModulePath
}
