package workerside

import (
	"context"

	"github.com/andrew-w-ross/vscode-test-pool/internal/envelope"
	"github.com/andrew-w-ross/vscode-test-pool/internal/scoped"
)

// TestRunnerHost is the external, contract-only collaborator wrapping
// the opaque in-editor test-runner capability the runtime drives. The
// runtime never inspects how it executes a batch, only whether Setup,
// RunTests, and CollectTests succeed or fail.
type TestRunnerHost interface {
	// Setup performs a one-time environment bootstrap and returns a
	// teardown thunk invoked once, on shutdown.
	Setup(ctx context.Context, bridge *WorkerHost) (teardown func(context.Context) error, err error)
	// RunTests executes session's files and reports completion.
	RunTests(ctx context.Context, session envelope.SerializedSession) error
	// CollectTests discovers session's test cases without running them.
	CollectTests(ctx context.Context, session envelope.SerializedSession) error
}

// WorkerHost is the capability the runtime builds and hands to the
// installed TestRunnerHost at Setup: Post/On/Off/Teardown bridge the RPC
// channel, Serialize/Deserialize expose the same cycle-tolerant codec
// envelopes use.
type WorkerHost struct {
	rt *Runtime
}

// Post wraps msg into an rpc-channel envelope and sends it to the pool.
func (h *WorkerHost) Post(msg any) error {
	return h.rt.publishRPC(msg)
}

// On subscribes cb to inbound rpc-channel payloads, in arrival order.
func (h *WorkerHost) On(cb func(payload any)) scoped.Subscription {
	return h.rt.rpcEvents.On(cb)
}

// Off removes a subscription previously returned by On.
func (h *WorkerHost) Off(sub scoped.Subscription) {
	h.rt.rpcEvents.Off(sub)
}

// Teardown releases every rpc-channel subscriber at once, used when the
// host wants to stop observing RPC traffic.
func (h *WorkerHost) Teardown() {
	h.rt.rpcEvents.Teardown()
}

// Serialize exposes the envelope codec's encode half.
func (h *WorkerHost) Serialize(channel envelope.Channel, payload any) (string, error) {
	return envelope.Encode(channel, payload)
}

// Deserialize exposes the envelope codec's decode half.
func (h *WorkerHost) Deserialize(raw any) (envelope.Envelope, error) {
	return envelope.Decode(raw)
}

// RunTests delegates to the installed TestRunnerHost's run entry with
// ctx and session unchanged. No worker capability reference is attached
// to the call; the host sees this bridge only through Setup.
func (h *WorkerHost) RunTests(ctx context.Context, session envelope.SerializedSession) error {
	return h.rt.host.RunTests(ctx, session)
}

// CollectTests delegates to the installed TestRunnerHost's collect
// entry.
func (h *WorkerHost) CollectTests(ctx context.Context, session envelope.SerializedSession) error {
	return h.rt.host.CollectTests(ctx, session)
}

// WorkerModulePath returns the filesystem path of the sibling
// vscode-worker module, resolved from this package's own location
// rather than the process working directory.
func (h *WorkerHost) WorkerModulePath() string {
	return h.rt.workerModulePath
}
