package pool

import (
	"context"
	"sync"
)

// StaticLauncher is a Launcher test double that never spawns a real
// process: it records the LaunchSpec it was given and exits only when
// told to, via Exit, Crash, or a handle's Kill. It lets pool tests drive the full Worker
// lifecycle (start, handshake, run/collect, stop) against an in-process
// worker-side stand-in instead of a real editor binary.
type StaticLauncher struct {
	mu        sync.Mutex
	spec      LaunchSpec
	launched  bool
	killed    bool
	done      chan struct{}
	exitErr   error
	launchErr error
}

// NewStaticLauncher returns a StaticLauncher that succeeds on Launch and
// only exits when Exit, Crash, or a handle's Kill is called.
func NewStaticLauncher() *StaticLauncher {
	return &StaticLauncher{done: make(chan struct{})}
}

// WithLaunchError makes the next Launch call fail with err instead of
// succeeding.
func (l *StaticLauncher) WithLaunchError(err error) *StaticLauncher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launchErr = err
	return l
}

func (l *StaticLauncher) Launch(ctx context.Context, spec LaunchSpec) (LaunchHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.spec = spec
	l.launched = true
	return &staticHandle{l: l}, nil
}

// Spec returns the LaunchSpec most recently passed to Launch.
func (l *StaticLauncher) Spec() LaunchSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spec
}

// Exit simulates the child process exiting cleanly.
func (l *StaticLauncher) Exit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

// Crash simulates the child process exiting with err as the cause.
func (l *StaticLauncher) Crash(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exitErr = err
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

type staticHandle struct {
	l *StaticLauncher
}

func (h *staticHandle) Wait(ctx context.Context) error {
	select {
	case <-h.l.done:
		h.l.mu.Lock()
		defer h.l.mu.Unlock()
		return h.l.exitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *staticHandle) Kill() error {
	h.l.mu.Lock()
	h.l.killed = true
	h.l.mu.Unlock()
	h.l.Exit()
	return nil
}

// Killed reports whether Kill was ever called on a handle this launcher
// produced.
func (l *StaticLauncher) Killed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.killed
}
