package workerside

import "errors"

var (
	// ErrMissingEndpoint means CHILD_TRANSPORT_ADDR was absent or blank.
	ErrMissingEndpoint = errors.New("workerside: CHILD_TRANSPORT_ADDR missing")
	// ErrReadyAckTimeout means no ready_ack arrived within the bounded
	// handshake window.
	ErrReadyAckTimeout = errors.New("workerside: ready_ack timed out")
	// ErrPoolDisconnected means the pool's socket closed before a
	// shutdown request was served.
	ErrPoolDisconnected = errors.New("workerside: pool disconnected")
	// ErrWorkerModuleUnresolvable means the runtime could not derive its
	// own module location to resolve a sibling module path.
	ErrWorkerModuleUnresolvable = errors.New("workerside: cannot resolve own module location")
)
