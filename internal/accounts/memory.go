// internal/accounts/memory.go
package accounts

import (
	"context"
	"strings"
	"sync"
)

// memStore is the dev/test store. Uniqueness checks happen under one lock
// so they match the conditional-write discipline of the postgres store.
type memStore struct {
	mu          sync.Mutex
	byID        map[string]Account
	byName      map[string]string // lower(name) -> id
	members     map[string]map[string]AccountUser
	invitations map[string]Invitation // id -> invitation
	byToken     map[string]string     // token -> id
}

func NewMemoryStore() Store {
	return &memStore{
		byID:        map[string]Account{},
		byName:      map[string]string{},
		members:     map[string]map[string]AccountUser{},
		invitations: map[string]Invitation{},
		byToken:     map[string]string{},
	}
}

func (m *memStore) InsertAccount(ctx context.Context, account Account, owner AccountUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(account.Name)
	if _, ok := m.byName[key]; ok {
		return ErrDuplicateName
	}
	m.byID[account.ID] = account
	m.byName[key] = account.ID
	m.members[account.ID] = map[string]AccountUser{owner.UserID: owner}
	return nil
}

func (m *memStore) FindAccountByName(ctx context.Context, name string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byName[strings.ToLower(name)]
	if !ok {
		return nil, ErrNotFound
	}
	a := m.byID[id]
	return &a, nil
}

func (m *memStore) FindAccountByID(ctx context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *memStore) Membership(ctx context.Context, accountID, userID string) (*AccountUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mu, ok := m.members[accountID][userID]; ok {
		return &mu, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) InsertMembership(ctx context.Context, mu AccountUser) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[mu.AccountID] == nil {
		m.members[mu.AccountID] = map[string]AccountUser{}
	}
	if _, ok := m.members[mu.AccountID][mu.UserID]; ok {
		return false, nil
	}
	m.members[mu.AccountID][mu.UserID] = mu
	return true, nil
}

func (m *memStore) Memberships(ctx context.Context, accountID string) ([]AccountUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AccountUser
	for _, mu := range m.members[accountID] {
		out = append(out, mu)
	}
	return out, nil
}

func (m *memStore) InsertInvitation(ctx context.Context, inv Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invitations[inv.ID] = inv
	m.byToken[inv.Token] = inv.ID
	return nil
}

func (m *memStore) FindInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	inv := m.invitations[id]
	return &inv, nil
}

func (m *memStore) ConsumeInvitation(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return false, nil
	}
	delete(m.invitations, id)
	delete(m.byToken, inv.Token)
	return true, nil
}
