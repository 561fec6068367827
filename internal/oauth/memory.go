// internal/oauth/memory.go
package oauth

import (
	"context"
	"sync"
	"time"
)

// memGrantStore is the dev/test grant store. One lock covers every
// redemption so single-use semantics match the redis implementation.
// Expired entries are swept lazily on save so the maps stay bounded the
// way redis TTLs keep the real store bounded.
type memGrantStore struct {
	mu        sync.Mutex
	codes     map[string]Grant
	codeExp   map[string]time.Time
	refresh   map[string]RefreshGrant
	refExp    map[string]time.Time
	pending   map[string]PendingRequest
	pendExp   map[string]time.Time
	revoked   map[string]time.Time
	nextSweep time.Time
	now       func() time.Time
}

func NewMemoryGrantStore() GrantStore {
	return &memGrantStore{
		codes:   map[string]Grant{},
		codeExp: map[string]time.Time{},
		refresh: map[string]RefreshGrant{},
		refExp:  map[string]time.Time{},
		pending: map[string]PendingRequest{},
		pendExp: map[string]time.Time{},
		revoked: map[string]time.Time{},
		now:     time.Now,
	}
}

const sweepInterval = time.Minute

// sweep drops expired entries from every map. Callers hold m.mu.
func (m *memGrantStore) sweep() {
	t := m.now()
	if t.Before(m.nextSweep) {
		return
	}
	m.nextSweep = t.Add(sweepInterval)
	for k, exp := range m.codeExp {
		if t.After(exp) {
			delete(m.codes, k)
			delete(m.codeExp, k)
		}
	}
	for k, exp := range m.refExp {
		if t.After(exp) {
			delete(m.refresh, k)
			delete(m.refExp, k)
		}
	}
	for k, exp := range m.pendExp {
		if t.After(exp) {
			delete(m.pending, k)
			delete(m.pendExp, k)
		}
	}
	for k, exp := range m.revoked {
		if t.After(exp) {
			delete(m.revoked, k)
		}
	}
}

func (m *memGrantStore) SaveCode(ctx context.Context, g Grant, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	m.codes[g.Code] = g
	m.codeExp[g.Code] = m.now().Add(ttl)
	return nil
}

func (m *memGrantStore) RedeemCode(ctx context.Context, code string) (*Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.codes[code]
	if !ok || m.now().After(m.codeExp[code]) {
		return nil, ErrGrantNotFound
	}
	delete(m.codes, code)
	delete(m.codeExp, code)
	return &g, nil
}

func (m *memGrantStore) SaveRefresh(ctx context.Context, g RefreshGrant, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	m.refresh[g.Token] = g
	m.refExp[g.Token] = m.now().Add(ttl)
	return nil
}

func (m *memGrantStore) RedeemRefresh(ctx context.Context, tok string) (*RefreshGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.refresh[tok]
	if !ok || m.now().After(m.refExp[tok]) {
		return nil, ErrGrantNotFound
	}
	delete(m.refresh, tok)
	delete(m.refExp, tok)
	return &g, nil
}

func (m *memGrantStore) SavePending(ctx context.Context, p PendingRequest, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	m.pending[p.ID] = p
	m.pendExp[p.ID] = m.now().Add(ttl)
	return nil
}

func (m *memGrantStore) TakePending(ctx context.Context, id string) (*PendingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok || m.now().After(m.pendExp[id]) {
		return nil, ErrGrantNotFound
	}
	delete(m.pending, id)
	delete(m.pendExp, id)
	return &p, nil
}

func (m *memGrantStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	m.revoked[jti] = m.now().Add(ttl)
	return nil
}

func (m *memGrantStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.revoked[jti]
	return ok && m.now().Before(exp), nil
}
