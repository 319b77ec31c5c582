package pool

import (
	"errors"
	"fmt"
)

// Sentinel errors matching the error-kind table: each names a distinct
// failure origin so callers can branch with errors.Is instead of string
// matching.
var (
	// ErrTransportBindFailed means the loopback listener could not bind
	// an ephemeral port.
	ErrTransportBindFailed = errors.New("pool: transport bind failed")
	// ErrChildLaunchFailed means the Launcher collaborator rejected the
	// launch request.
	ErrChildLaunchFailed = errors.New("pool: child launch failed")
	// ErrHandshakeFailed means the socket closed or errored before the
	// worker reached Ready.
	ErrHandshakeFailed = errors.New("pool: handshake failed")
	// ErrNotReady means Send was called before the handshake completed.
	ErrNotReady = errors.New("pool: worker not ready")
	// ErrControlRequestTimeout means a pending control request's timer
	// fired before a response arrived.
	ErrControlRequestTimeout = errors.New("pool: control request timed out")
	// ErrWorkerDisconnected means the socket closed with requests still
	// pending.
	ErrWorkerDisconnected = errors.New("pool: worker disconnected")
	// ErrWorkerStopped means Stop rejected requests still pending at
	// shutdown.
	ErrWorkerStopped = errors.New("pool: worker stopped")
	// ErrAcceptConflict means a second client connected to a transport
	// already serving one, a protocol violation.
	ErrAcceptConflict = errors.New("pool: transport already has a client")
)

// timeoutError wraps ErrControlRequestTimeout with the action name that
// timed out, so callers can tell which request stalled without parsing
// the error string.
type timeoutError struct {
	action string
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("pool: control request %q timed out", e.action)
}

func (e *timeoutError) Unwrap() error { return ErrControlRequestTimeout }

func newTimeoutError(action string) error {
	return &timeoutError{action: action}
}

// StopError aggregates the failures encountered while unwinding a
// Worker's resources during Stop, so a single shutdown call can surface
// more than one root cause (e.g. the child launcher rejecting while the
// shutdown response also reported failure) without losing either.
type StopError struct {
	Causes []error
}

func (e *StopError) Error() string {
	if len(e.Causes) == 1 {
		return fmt.Sprintf("pool: stop failed: %v", e.Causes[0])
	}
	msg := fmt.Sprintf("pool: stop failed with %d errors:", len(e.Causes))
	for _, c := range e.Causes {
		msg += fmt.Sprintf(" [%v]", c)
	}
	return msg
}

func (e *StopError) Unwrap() []error { return e.Causes }
