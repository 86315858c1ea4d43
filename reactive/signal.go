package reactive

import "sync"

// Signal is an owned mutable cell.
type Signal[T any] struct {
	cell
	vmu   sync.RWMutex
	value T
	equal func(a, b T) bool
}

// NewSignal creates a signal compared with ==
func NewSignal[T comparable](initial T) *Signal[T] {
	return NewSignalFunc(initial, func(a, b T) bool { return a == b })
}

// NewSignalFunc creates a signal with a custom equality check, for values
// that are not comparable with ==.
func NewSignalFunc[T any](initial T, equal func(a, b T) bool) *Signal[T] {
	return &Signal[T]{value: initial, equal: equal}
}

// Get returns the value and subscribes the effect owning scope. A nil
// scope behaves like Peek.
func (s *Signal[T]) Get(scope *Scope) T {
	s.track(scope)
	return s.Peek()
}

// Peek returns the value without tracking.
func (s *Signal[T]) Peek() T {
	s.vmu.RLock()
	defer s.vmu.RUnlock()
	return s.value
}

// Set stores v. Subscribers re-run synchronously unless v equals the
// current value.
func (s *Signal[T]) Set(v T) {
	s.vmu.Lock()
	if s.equal != nil && s.equal(s.value, v) {
		s.vmu.Unlock()
		return
	}
	s.value = v
	s.vmu.Unlock()
	s.notify()
}

// Update sets the value computed from the current one.
func (s *Signal[T]) Update(fn func(T) T) {
	s.Set(fn(s.Peek()))
}

// Subscribers returns the number of effects currently tracking the signal.
func (s *Signal[T]) Subscribers() int {
	return s.subscribers()
}
