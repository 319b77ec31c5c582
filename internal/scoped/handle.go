package scoped

import "sync"

// Handle wraps a resource with a disposal function that runs at most
// once no matter how many times Release is called.
type Handle struct {
	once    sync.Once
	dispose func()
}

// NewHandle acquires a handle around dispose. dispose is called exactly
// once, on the first Release.
func NewHandle(dispose func()) *Handle {
	if dispose == nil {
		dispose = func() {}
	}
	return &Handle{dispose: dispose}
}

// Release runs the disposal function if it hasn't run yet. Safe to call
// any number of times, from any number of goroutines.
func (h *Handle) Release() {
	h.once.Do(h.dispose)
}

// Stack composes handles into a LIFO group: releasing the stack releases
// its members in the reverse of the order they were pushed, matching the
// acquisition order of the resources they guard (last acquired, first
// released).
type Stack struct {
	mu      sync.Mutex
	handles []*Handle
	handle  *Handle
}

// NewStack returns an empty disposal stack.
func NewStack() *Stack {
	s := &Stack{}
	s.handle = NewHandle(s.unwind)
	return s
}

// Push adds dispose to the top of the stack and returns the Handle
// wrapping it, in case the caller wants to release that single resource
// early (e.g. a listener removed mid-session).
func (s *Stack) Push(dispose func()) *Handle {
	h := NewHandle(dispose)
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	return h
}

// Release unwinds the stack, releasing every handle still pending in
// reverse acquisition order. Safe to call more than once; only the first
// call has any effect.
func (s *Stack) Release() {
	s.handle.Release()
}

func (s *Stack) unwind() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for i := len(handles) - 1; i >= 0; i-- {
		handles[i].Release()
	}
}
