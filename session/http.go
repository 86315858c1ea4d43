package session

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// DefaultCookie is the cookie carrying the session id
const DefaultCookie = "ir_session"

// Manager ties a provider to an HTTP cookie
type Manager struct {
	Provider Provider
	Cookie   string
	TTL      time.Duration
	Secure   bool

	// ClaimKeys are the top-level locals only ApplyClaims may write.
	ClaimKeys []string
}

// NewManager creates a manager with the default cookie name and claim keys
func NewManager(p Provider, ttl time.Duration) *Manager {
	return &Manager{
		Provider:  p,
		Cookie:    DefaultCookie,
		TTL:       ttl,
		ClaimKeys: append([]string(nil), DefaultClaimKeys...),
	}
}

// Load returns the session id and locals for r. Requests without a valid
// session get empty locals and an empty id.
func (m *Manager) Load(ctx context.Context, r *http.Request) (string, map[string]any, error) {
	c, err := r.Cookie(m.Cookie)
	if err != nil || c.Value == "" {
		return "", map[string]any{}, nil
	}
	locals, err := m.Provider.Load(ctx, c.Value)
	if errors.Is(err, ErrNotFound) {
		return "", map[string]any{}, nil
	}
	if err != nil {
		return "", nil, err
	}
	return c.Value, locals, nil
}

// Save stores locals, issuing a new session cookie when id is empty, and
// returns the id used.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, id string, locals map[string]any) (string, error) {
	if id == "" {
		id = NewID()
	}
	if err := m.Provider.Save(ctx, id, locals, m.TTL); err != nil {
		return "", err
	}
	cookie := &http.Cookie{
		Name:     m.Cookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if m.TTL > 0 {
		cookie.MaxAge = int(m.TTL.Seconds())
	}
	http.SetCookie(w, cookie)
	return id, nil
}

// Clear deletes the session and expires the cookie
func (m *Manager) Clear(ctx context.Context, w http.ResponseWriter, id string) error {
	if id != "" {
		if err := m.Provider.Delete(ctx, id); err != nil {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{Name: m.Cookie, Value: "", Path: "/", MaxAge: -1})
	return nil
}
