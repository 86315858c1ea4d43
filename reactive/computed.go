package reactive

// Computed is a derived value recomputed whenever one of the signals or
// computed values it read changes.
type Computed[T any] struct {
	value  *Signal[T]
	effect *Effect
}

// NewComputed creates a computed value compared with ==
func NewComputed[T comparable](fn func(*Scope) T) *Computed[T] {
	return NewComputedFunc(fn, func(a, b T) bool { return a == b })
}

// NewComputedFunc creates a computed value with a custom equality check
func NewComputedFunc[T any](fn func(*Scope) T, equal func(a, b T) bool) *Computed[T] {
	var zero T
	c := &Computed[T]{value: NewSignalFunc(zero, equal)}
	c.effect = NewEffect(func(s *Scope) {
		c.value.Set(fn(s))
	})
	return c
}

// Get returns the current value and subscribes the effect owning scope.
func (c *Computed[T]) Get(scope *Scope) T {
	return c.value.Get(scope)
}

// Peek returns the current value without tracking.
func (c *Computed[T]) Peek() T {
	return c.value.Peek()
}

// Dispose stops recomputation.
func (c *Computed[T]) Dispose() {
	c.effect.Cancel()
}
