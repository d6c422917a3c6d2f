// Package relay keeps only the newest video frame between a capture goroutine
// and the frame-processing loop.
package relay

import (
	"sync"
	"sync/atomic"
)

// Slot is a single-slot mailbox. Put overwrites any unconsumed value and
// TryTake empties the slot; neither ever blocks waiting for the other side.
type Slot[T any] struct {
	mu      sync.Mutex
	value   T
	full    bool
	closed  bool
	discard func(T)
	drops   atomic.Uint64
}

// NewSlot creates an empty Slot. discard, if non-nil, is called with every
// value that is overwritten or left behind on Close, so frames backed by
// native memory can be released.
func NewSlot[T any](discard func(T)) *Slot[T] {
	return &Slot[T]{discard: discard}
}

// Put stores v as the only held value, dropping the previous one if it was
// never taken. After Close, v is discarded immediately.
func (s *Slot[T]) Put(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.release(v)
		return
	}

	old, hadOld := s.value, s.full
	s.value = v
	s.full = true
	s.mu.Unlock()

	if hadOld {
		s.drops.Add(1)
		s.release(old)
	}
}

// TryTake removes and returns the held value. It reports false when the slot
// is empty.
func (s *Slot[T]) TryTake() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.full {
		return zero, false
	}

	v := s.value
	s.value = zero
	s.full = false
	return v, true
}

// Len returns 1 when a value is held and 0 otherwise.
func (s *Slot[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.full {
		return 1
	}
	return 0
}

// Drops returns how many values were overwritten before being taken.
func (s *Slot[T]) Drops() uint64 {
	return s.drops.Load()
}

// Close releases any held value. Later Puts discard their argument.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	var zero T
	old, hadOld := s.value, s.full
	s.value = zero
	s.full = false
	s.closed = true
	s.mu.Unlock()

	if hadOld {
		s.release(old)
	}
}

func (s *Slot[T]) release(v T) {
	if s.discard != nil {
		s.discard(v)
	}
}
