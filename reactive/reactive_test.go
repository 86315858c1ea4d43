package reactive

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectRunsImmediatelyAndOnChange(t *testing.T) {
	count := NewSignal(0)
	runs := 0
	seen := -1

	NewEffect(func(s *Scope) {
		runs++
		seen = count.Get(s)
	})
	assert.Equal(t, 1, runs)
	assert.Equal(t, 0, seen)

	count.Set(5)
	assert.Equal(t, 2, runs)
	assert.Equal(t, 5, seen)

	count.Set(5)
	assert.Equal(t, 2, runs, "equal write must not notify")
}

func TestComputedReflectsLatestInputs(t *testing.T) {
	a := NewSignal(1)
	b := NewSignal(2)
	sum := NewComputed(func(s *Scope) int { return a.Get(s) + b.Get(s) })

	assert.Equal(t, 3, sum.Peek())

	a.Set(10)
	assert.Equal(t, 12, sum.Peek())

	b.Set(-4)
	assert.Equal(t, 6, sum.Peek())
}

func TestEffectOnComputed(t *testing.T) {
	first := NewSignal("Ada")
	last := NewSignal("Lovelace")
	full := NewComputed(func(s *Scope) string { return first.Get(s) + " " + last.Get(s) })

	var got []string
	NewEffect(func(s *Scope) {
		got = append(got, full.Get(s))
	})

	last.Set("Byron")
	assert.Equal(t, []string{"Ada Lovelace", "Ada Byron"}, got)
}

func TestDependenciesAreRecollectedEachRun(t *testing.T) {
	useA := NewSignal(true)
	a := NewSignal("a")
	b := NewSignal("b")
	runs := 0

	NewEffect(func(s *Scope) {
		runs++
		if useA.Get(s) {
			a.Get(s)
		} else {
			b.Get(s)
		}
	})
	assert.Equal(t, 1, a.Subscribers())
	assert.Equal(t, 0, b.Subscribers())

	useA.Set(false)
	assert.Equal(t, 2, runs)
	assert.Equal(t, 0, a.Subscribers())
	assert.Equal(t, 1, b.Subscribers())

	a.Set("ignored")
	assert.Equal(t, 2, runs)
}

func TestCancelUnsubscribes(t *testing.T) {
	s := NewSignal(0)
	runs := 0
	e := NewEffect(func(scope *Scope) {
		runs++
		s.Get(scope)
	})
	assert.Equal(t, 1, s.Subscribers())

	e.Cancel()
	assert.True(t, e.Cancelled())
	assert.Equal(t, 0, s.Subscribers())

	s.Set(1)
	assert.Equal(t, 1, runs)
}

func TestPeekAndNilScopeDoNotSubscribe(t *testing.T) {
	s := NewSignal(1)
	other := NewSignal(2)
	runs := 0
	NewEffect(func(*Scope) {
		runs++
		s.Peek()
		other.Get(nil)
	})

	s.Set(3)
	other.Set(4)
	assert.Equal(t, 1, runs)
}

func TestEffectWritingItsOwnDependencySettles(t *testing.T) {
	s := NewSignal(0)
	runs := 0
	NewEffect(func(scope *Scope) {
		runs++
		if v := s.Get(scope); v < 3 {
			s.Set(v + 1)
		}
	})
	assert.Equal(t, 3, s.Peek())
	assert.Equal(t, 4, runs)
}

func TestSignalFuncForUncomparableValues(t *testing.T) {
	items := NewSignalFunc([]string{"a"}, func(x, y []string) bool {
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	})
	runs := 0
	NewEffect(func(s *Scope) {
		runs++
		items.Get(s)
	})

	items.Set([]string{"a"})
	assert.Equal(t, 1, runs)

	items.Update(func(v []string) []string { return append(append([]string{}, v...), "b") })
	assert.Equal(t, 2, runs)
	assert.Equal(t, []string{"a", "b"}, items.Peek())
}

func TestConcurrentSetIsSafe(t *testing.T) {
	s := NewSignal(0)
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			s.Set(v)
			s.Peek()
		}(i)
	}
	wg.Wait()
	assert.NotZero(t, s.Peek())
}

func TestComputedDispose(t *testing.T) {
	a := NewSignal(1)
	double := NewComputed(func(s *Scope) int { return a.Get(s) * 2 })
	double.Dispose()

	a.Set(5)
	assert.Equal(t, 2, double.Peek())
}

func TestOverlappingEffectsOnGoroutines(t *testing.T) {
	a := NewSignal(0)
	b := NewSignal(0)
	unrelated := NewSignal(0)

	aStarted := make(chan struct{})
	bStarted := make(chan struct{})
	aRelease := make(chan struct{})
	bRelease := make(chan struct{})

	var mu sync.Mutex
	runs := map[string]int{}
	count := func(name string) int {
		mu.Lock()
		defer mu.Unlock()
		return runs[name]
	}

	var first sync.Once
	var second sync.Once
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		NewEffect(func(s *Scope) {
			mu.Lock()
			runs["a"]++
			mu.Unlock()
			a.Get(s)
			first.Do(func() {
				close(aStarted)
				<-aRelease
			})
		})
	}()
	<-aStarted
	go func() {
		defer wg.Done()
		NewEffect(func(s *Scope) {
			mu.Lock()
			runs["b"]++
			mu.Unlock()
			b.Get(s)
			second.Do(func() {
				close(bStarted)
				<-bRelease
			})
		})
	}()
	<-bStarted

	// Effect a finishes while b is still running.
	close(aRelease)
	close(bRelease)
	wg.Wait()

	unrelated.Get(nil)
	assert.Equal(t, 0, unrelated.Subscribers())
	unrelated.Set(1)
	assert.Equal(t, 1, count("a"))
	assert.Equal(t, 1, count("b"))

	assert.Equal(t, 1, a.Subscribers())
	assert.Equal(t, 1, b.Subscribers())
	a.Set(1)
	require.Equal(t, 2, count("a"))
	assert.Equal(t, 1, count("b"))
}

func TestScopeStopsTrackingAfterRun(t *testing.T) {
	s := NewSignal(0)
	late := NewSignal(0)
	var kept *Scope
	runs := 0
	NewEffect(func(scope *Scope) {
		runs++
		s.Get(scope)
		kept = scope
	})

	late.Get(kept)
	assert.Equal(t, 0, late.Subscribers())
	late.Set(1)
	assert.Equal(t, 1, runs)
}
