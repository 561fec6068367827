// internal/apps/memory.go
package apps

import (
	"context"
	"sync"
)

type memStore struct {
	mu         sync.Mutex
	apps       map[string]Application
	providers  map[string]OidcProviderConfig
	byClientID map[string]string // client id -> provider id
}

func NewMemoryStore() Store {
	return &memStore{
		apps:       map[string]Application{},
		providers:  map[string]OidcProviderConfig{},
		byClientID: map[string]string{},
	}
}

func (m *memStore) InsertApplication(ctx context.Context, app Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps[app.ID] = app
	return nil
}

func (m *memStore) FindApplicationByID(ctx context.Context, id string) (*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *memStore) ApplicationsByAccount(ctx context.Context, accountID string) ([]Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Application
	for _, a := range m.apps {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) SaveProvider(ctx context.Context, p OidcProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.providers[p.ID]; ok {
		delete(m.byClientID, prev.ClientID)
	}
	if p.IsDefault {
		for id, other := range m.providers {
			if id != p.ID && other.ApplicationID == p.ApplicationID && other.IsDefault {
				other.IsDefault = false
				m.providers[id] = other
			}
		}
	}
	cp := p
	cp.Scopes = append([]string(nil), p.Scopes...)
	m.providers[p.ID] = cp
	m.byClientID[p.ClientID] = p.ID
	return nil
}

func (m *memStore) FindProviderByID(ctx context.Context, id string) (*OidcProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	cp.Scopes = append([]string(nil), p.Scopes...)
	return &cp, nil
}

func (m *memStore) FindProviderByClientID(ctx context.Context, clientID string) (*OidcProviderConfig, error) {
	m.mu.Lock()
	id, ok := m.byClientID[clientID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.FindProviderByID(ctx, id)
}

func (m *memStore) ProvidersByApplication(ctx context.Context, applicationID string) ([]OidcProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OidcProviderConfig
	for _, p := range m.providers {
		if p.ApplicationID == applicationID {
			cp := p
			cp.Scopes = append([]string(nil), p.Scopes...)
			out = append(out, cp)
		}
	}
	return out, nil
}
