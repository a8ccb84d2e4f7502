package engine

import (
	"context"
	"sync"
)

// StopSignal is the process-wide cancellation flag. It is set once and never
// cleared.
type StopSignal struct {
	once sync.Once
	done chan struct{}
}

// NewStopSignal creates an unset signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Set raises the signal. Calling it again has no effect.
func (s *StopSignal) Set() {
	s.once.Do(func() { close(s.done) })
}

// IsSet reports whether the signal has been raised.
func (s *StopSignal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed when the signal is raised.
func (s *StopSignal) Done() <-chan struct{} {
	return s.done
}

// Context returns a context that is cancelled when the signal is raised.
func (s *StopSignal) Context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
