// Package reactive provides signals, computed values and effects with
// read-time dependency tracking.
//
// Tracking is scoped: an effect's function receives a *Scope and reads
// made through that scope subscribe the effect. There is no process-wide
// "current effect", so effects may run on any number of goroutines at once.
// A nil scope reads without tracking.
package reactive

import "sync"

// Scope is the tracking handle of one effect run. It stops tracking once
// the run that created it returns.
type Scope struct {
	effect *Effect
	gen    uint64
}

// cell is the subscriber bag shared by signals and computed values.
type cell struct {
	mu   sync.Mutex
	subs map[*Effect]struct{}
}

func (c *cell) track(s *Scope) {
	if s == nil || s.effect == nil {
		return
	}
	e := s.effect
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelled || e.gen != s.gen || !e.running {
		return
	}
	if e.deps == nil {
		e.deps = make(map[*cell]struct{})
	}
	e.deps[c] = struct{}{}

	c.mu.Lock()
	if c.subs == nil {
		c.subs = make(map[*Effect]struct{})
	}
	c.subs[e] = struct{}{}
	c.mu.Unlock()
}

func (c *cell) unsubscribe(e *Effect) {
	c.mu.Lock()
	delete(c.subs, e)
	c.mu.Unlock()
}

// notify re-runs a snapshot of the subscribers in unspecified order.
func (c *cell) notify() {
	c.mu.Lock()
	subs := make([]*Effect, 0, len(c.subs))
	for e := range c.subs {
		subs = append(subs, e)
	}
	c.mu.Unlock()
	for _, e := range subs {
		e.run()
	}
}

func (c *cell) subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
