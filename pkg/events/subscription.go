package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Subscription is one subscriber's receive handle into the Bus.
//
// Recv must be called from a single goroutine; Close may be called from any.
type Subscription struct {
	ID uuid.UUID

	bus *Bus

	mu     sync.Mutex
	buf    []string
	head   int
	size   int
	missed uint64
	closed bool

	notify chan struct{}
}

// push appends event, overwriting the oldest entry when full. Reports
// whether an event was dropped.
func (s *Subscription) push(event string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	dropped := false
	if s.size == len(s.buf) {
		s.buf[s.head] = ""
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		s.missed++
		dropped = true
	}
	s.buf[(s.head+s.size)%len(s.buf)] = event
	s.size++
	s.mu.Unlock()

	s.wake()
	return dropped
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

// Recv returns the next event, blocking until one is available or ctx ends.
//
// If events were dropped since the previous call, Recv first returns a
// *LagError carrying the count; the following call resumes with the oldest
// retained event. After Close, buffered events are still returned before
// ErrClosed.
func (s *Subscription) Recv(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		if s.missed > 0 {
			missed := s.missed
			s.missed = 0
			s.mu.Unlock()
			return "", &LagError{Missed: missed}
		}
		if s.size > 0 {
			event := s.buf[s.head]
			s.buf[s.head] = ""
			s.head = (s.head + 1) % len(s.buf)
			s.size--
			s.mu.Unlock()
			return event, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return "", ErrClosed
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Pending returns the number of buffered events.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Close unsubscribes from the bus. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.remove(s.ID)
	s.markClosed()
}
