package eval

import (
	"fmt"
	"strings"
	"sync"
)

// Environment tags where evaluation happens
type Environment string

const (
	Server Environment = "server"
	Client Environment = "client"
)

// ParseEnvironment parses "server" or "client".
func ParseEnvironment(raw string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(raw))) {
	case "", Server:
		return Server, nil
	case Client:
		return Client, nil
	default:
		return "", fmt.Errorf("unknown environment %q", raw)
	}
}

// Context is the ambient state of one evaluation. LocalValues is the only
// channel for authorization claims, form state and similar inputs.
type Context struct {
	Env Environment

	mu          sync.RWMutex
	localValues map[string]any
}

// NewContext creates a context for env with a copy of locals.
func NewContext(env Environment, locals map[string]any) *Context {
	c := &Context{Env: env, localValues: make(map[string]any, len(locals))}
	for k, v := range locals {
		c.localValues[k] = v
	}
	return c
}

// Local returns a top-level local value.
func (c *Context) Local(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.localValues[key]
	return v, ok
}

// SetLocal stores a top-level local value.
func (c *Context) SetLocal(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.localValues == nil {
		c.localValues = make(map[string]any)
	}
	c.localValues[key] = value
}

// Locals returns a shallow snapshot of the local values.
func (c *Context) Locals() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.localValues))
	for k, v := range c.localValues {
		out[k] = v
	}
	return out
}
