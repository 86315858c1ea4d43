// Package store keeps named IR documents in memory, on disk, in PostgreSQL
// or in S3.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/effectus/irkit/ir"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidName = errors.New("invalid document name")
)

// Store is a keyed collection of IR documents
type Store interface {
	Get(ctx context.Context, name string) (*ir.Document, error)
	Put(ctx context.Context, name string, doc *ir.Document) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// ValidateName rejects names that are empty, absolute, or escape their
// store through "..".
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for i := 0; i+1 < len(name); i++ {
		if name[i] == '.' && name[i+1] == '.' {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

// Memory is an in-process store
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*ir.Document
}

// NewMemory creates an empty memory store
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*ir.Document)}
}

func (m *Memory) Get(ctx context.Context, name string) (*ir.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return doc, nil
}

func (m *Memory) Put(ctx context.Context, name string, doc *ir.Document) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = doc
	return nil
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(m.docs, name)
	return nil
}

func (m *Memory) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.docs))
	for name := range m.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
