// Package session stores per-visitor local values between requests.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired sessions
var ErrNotFound = errors.New("session not found")

// Provider persists session local values
type Provider interface {
	Load(ctx context.Context, id string) (map[string]any, error)
	Save(ctx context.Context, id string, locals map[string]any, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// NewID returns a fresh random session id
func NewID() string {
	return uuid.NewString()
}

type entry struct {
	locals  map[string]any
	expires time.Time
}

// Memory is an in-process provider
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty memory provider
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

func (m *Memory) Load(ctx context.Context, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, id)
		return nil, ErrNotFound
	}
	return copyLocals(e.locals), nil
}

// Save stores locals under id. A zero ttl never expires.
func (m *Memory) Save(ctx context.Context, id string, locals map[string]any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{locals: copyLocals(locals)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[id] = e
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func copyLocals(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
