package session

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultClaimKeys holds the locals the built-in policies read claims from
var DefaultClaimKeys = []string{"user"}

var (
	// ErrClaimKey is returned when a visitor update touches a claim key
	ErrClaimKey = errors.New("claim keys are server-issued")
	// ErrNotClaim is returned when a claims update carries a non-claim key
	ErrNotClaim = errors.New("not a claim key")
)

// IsClaim reports whether key is one of the manager's claim keys.
func (m *Manager) IsClaim(key string) bool {
	for _, k := range m.ClaimKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ApplyVisitor merges a visitor-supplied update into locals. With replace
// set every non-claim key is dropped first. Claims always survive.
func (m *Manager) ApplyVisitor(locals, update map[string]any, replace bool) (map[string]any, error) {
	if bad := m.keys(update, true); len(bad) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrClaimKey, bad)
	}
	out := make(map[string]any, len(locals)+len(update))
	for k, v := range locals {
		if !replace || m.IsClaim(k) {
			out[k] = v
		}
	}
	for k, v := range update {
		out[k] = v
	}
	return out, nil
}

// ApplyClaims merges server-issued claims into locals. With replace set
// every existing claim is dropped first. A nil claim value removes the key.
func (m *Manager) ApplyClaims(locals, claims map[string]any, replace bool) (map[string]any, error) {
	if bad := m.keys(claims, false); len(bad) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrNotClaim, bad)
	}
	out := make(map[string]any, len(locals)+len(claims))
	for k, v := range locals {
		if !replace || !m.IsClaim(k) {
			out[k] = v
		}
	}
	for k, v := range claims {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out, nil
}

// keys returns the sorted keys of in whose claim status equals claim.
func (m *Manager) keys(in map[string]any, claim bool) []string {
	var out []string
	for k := range in {
		if m.IsClaim(k) == claim {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
