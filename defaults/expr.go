package defaults

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/golang/groupcache/lru"
)

// MaxCachedPrograms bounds the compiled expression cache.
const MaxCachedPrograms = 1024

var programs = newProgramCache(MaxCachedPrograms)

// programCache keeps the most recently used compiled programs by source.
type programCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newProgramCache(size int) *programCache {
	return &programCache{cache: lru.New(size)}
}

func (c *programCache) get(source string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.cache.Get(source)
	if !ok {
		return nil, false
	}
	return p.(*vm.Program), true
}

func (c *programCache) add(source string, p *vm.Program) {
	c.mu.Lock()
	c.cache.Add(source, p)
	c.mu.Unlock()
}

func (c *programCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

func (c *programCache) compile(source string) (*vm.Program, error) {
	if p, ok := c.get(source); ok {
		return p, nil
	}
	p, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compiling expression %q: %w", source, err)
	}
	c.add(source, p)
	return p, nil
}

// RunExpr evaluates an expr-lang expression against env.
func RunExpr(source string, env map[string]any) (any, error) {
	p, err := programs.compile(source)
	if err != nil {
		return nil, err
	}
	if env == nil {
		env = map[string]any{}
	}
	out, err := expr.Run(p, env)
	if err != nil {
		return nil, fmt.Errorf("running expression %q: %w", source, err)
	}
	return out, nil
}
