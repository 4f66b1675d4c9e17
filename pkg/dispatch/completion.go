package dispatch

import (
	"context"
	"sync"
)

// Completion tracks an asynchronous operation.
type Completion struct {
	done chan struct{}
	err  error
}

// Go runs fn on a new goroutine and returns its Completion.
func Go(fn func() error) *Completion {
	c := &Completion{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		c.err = fn()
	}()
	return c
}

// Done is closed when the operation has finished.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the operation has finished and returns its error.
func (c *Completion) Wait() error {
	<-c.done
	return c.err
}

// WaitContext waits for the operation or ctx, whichever comes first. When ctx
// ends first the operation keeps running and ctx.Err() is returned.
func (c *Completion) WaitContext(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the result of a finished operation and nil while it is running.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Stream runs submitted operations one at a time in submission order. A
// failed operation does not stop later ones; each reports through its own
// Completion.
type Stream struct {
	mu   sync.Mutex
	last *Completion
}

// NewStream creates an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

// Submit enqueues fn after every earlier submission.
func (s *Stream) Submit(fn func() error) *Completion {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.last
	c := Go(func() error {
		if prev != nil {
			<-prev.done
		}
		return fn()
	})
	s.last = c
	return c
}

// Launch enqueues a kernel launch on the stream.
func (s *Stream) Launch(ctx context.Context, d *Dispatcher, name string, units int, kernel Kernel) *Completion {
	return s.Submit(func() error {
		return d.Launch(ctx, name, units, kernel)
	})
}

// Synchronize waits for every submission made so far and returns the error of
// the most recent one.
func (s *Stream) Synchronize() error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		return nil
	}
	return last.Wait()
}
