package core

import (
	"context"
	"sync"
)

// AbortController owns a Signal and is the only handle able to abort it.
type AbortController struct {
	signal *Signal
}

// NewAbortController creates a controller with a fresh, non-aborted signal.
func NewAbortController() *AbortController {
	return &AbortController{signal: &Signal{done: make(chan struct{})}}
}

// Signal returns the cancellation token to hand to operations.
func (c *AbortController) Signal() *Signal {
	return c.signal
}

// Abort marks the signal aborted. Later calls are no-ops.
// A nil reason is recorded as ErrAborted.
func (c *AbortController) Abort(reason error) {
	c.signal.abort(reason)
}

// Signal is a cooperative cancellation token: aborted state, reason and
// subscribers. A nil *Signal is valid and never aborts.
type Signal struct {
	mu     sync.Mutex
	done   chan struct{}
	reason error
	subs   map[int]func(error)
	nextID int
}

// AbortedSignal returns a signal that is already aborted.
func AbortedSignal(reason error) *Signal {
	c := NewAbortController()
	c.Abort(reason)
	return c.Signal()
}

// Aborted reports whether the signal fired.
func (s *Signal) Aborted() bool {
	if s == nil {
		return false
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Reason returns the abort reason, or nil while not aborted.
func (s *Signal) Reason() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done returns a channel closed on abort. A nil signal returns a nil channel.
func (s *Signal) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}

// Subscribe registers fn to run once on abort and returns its unsubscribe func.
// fn runs immediately when the signal is already aborted.
func (s *Signal) Subscribe(fn func(reason error)) func() {
	if s == nil {
		return func() {}
	}
	s.mu.Lock()
	if s.reason != nil {
		reason := s.reason
		s.mu.Unlock()
		fn(reason)
		return func() {}
	}
	if s.subs == nil {
		s.subs = make(map[int]func(error))
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Context derives a context that is cancelled when parent ends or the signal aborts.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if s == nil {
		return ctx, cancel
	}
	unsubscribe := s.Subscribe(func(error) { cancel() })
	return ctx, func() {
		unsubscribe()
		cancel()
	}
}

func (s *Signal) abort(reason error) {
	if reason == nil {
		reason = ErrAborted
	}
	s.mu.Lock()
	if s.reason != nil {
		s.mu.Unlock()
		return
	}
	s.reason = reason
	close(s.done)
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, fn := range subs {
		fn(reason)
	}
}
