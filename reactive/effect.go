package reactive

import "sync"

// Effect re-runs its function whenever a signal read through its scope
// during the most recent run changes value.
type Effect struct {
	fn func(*Scope)

	mu        sync.Mutex
	deps      map[*cell]struct{}
	gen       uint64
	running   bool
	pending   bool
	cancelled bool
}

// NewEffect runs fn once immediately and returns the handle that keeps it
// subscribed.
func NewEffect(fn func(s *Scope)) *Effect {
	e := &Effect{fn: fn}
	e.run()
	return e
}

// Cancel unsubscribes the effect from every cell it tracks. It never runs
// again afterwards.
func (e *Effect) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()
	e.clearDeps()
}

// Cancelled reports whether Cancel has been called.
func (e *Effect) Cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

func (e *Effect) clearDeps() {
	e.mu.Lock()
	deps := e.deps
	e.deps = nil
	e.mu.Unlock()
	for c := range deps {
		c.unsubscribe(e)
	}
}

func (e *Effect) run() {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return
	}
	if e.running {
		// Notified while running: run again once the current pass ends.
		e.pending = true
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.pending = false
		e.gen++
		e.mu.Unlock()
	}()

	for {
		e.clearDeps()

		e.mu.Lock()
		e.gen++
		scope := &Scope{effect: e, gen: e.gen}
		e.mu.Unlock()
		e.fn(scope)

		e.mu.Lock()
		again := e.pending && !e.cancelled
		e.pending = false
		e.mu.Unlock()
		if !again {
			return
		}
	}
}
