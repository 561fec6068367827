// internal/identity/memory.go
package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memToken struct {
	userID    string
	purpose   string
	expiresAt time.Time
}

// memStore is the dev/test credential store.
type memStore struct {
	mu       sync.Mutex
	byID     map[string]User
	byEmail  map[string]string   // lower(email) -> id
	tokens   map[string]memToken // token -> record
	tokenTTL time.Duration
	now      func() time.Time
}

func NewMemoryStore() Store {
	return &memStore{
		byID:     map[string]User{},
		byEmail:  map[string]string{},
		tokens:   map[string]memToken{},
		tokenTTL: 24 * time.Hour,
		now:      time.Now,
	}
}

func (m *memStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := m.byID[id]
	return &u, nil
}

func (m *memStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *memStore) CreateUser(ctx context.Context, user User, password string) (*User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(user.Email)
	if _, ok := m.byEmail[key]; ok {
		return nil, ErrDuplicateEmail
	}
	user.PasswordHash = hash
	m.byID[user.ID] = user
	m.byEmail[key] = user.ID
	return &user, nil
}

func (m *memStore) issueToken(userID, purpose string) (string, error) {
	t, err := newUserToken()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.tokens[t] = memToken{userID: userID, purpose: purpose, expiresAt: m.now().Add(m.tokenTTL)}
	m.mu.Unlock()
	return t, nil
}

// redeemToken deletes the token under the lock; only one caller can win.
func (m *memStore) redeemToken(userID, purpose, t string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[t]
	if !ok || rec.userID != userID || rec.purpose != purpose || m.now().After(rec.expiresAt) {
		return false
	}
	delete(m.tokens, t)
	return true
}

func (m *memStore) GenerateConfirmationToken(ctx context.Context, user *User) (string, error) {
	return m.issueToken(user.ID, PurposeConfirm)
}

func (m *memStore) ConfirmEmail(ctx context.Context, userID, token string) error {
	if !m.redeemToken(userID, PurposeConfirm, token) {
		return ErrInvalidToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return ErrNotFound
	}
	u.EmailConfirmed = true
	m.byID[userID] = u
	return nil
}

func (m *memStore) GeneratePasswordResetToken(ctx context.Context, user *User) (string, error) {
	return m.issueToken(user.ID, PurposeReset)
}

func (m *memStore) ResetPassword(ctx context.Context, userID, token, newPassword string) error {
	if !m.redeemToken(userID, PurposeReset, token) {
		return ErrInvalidToken
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	m.byID[userID] = u
	return nil
}

func (m *memStore) VerifyPassword(ctx context.Context, user *User, password string) bool {
	return checkPassword(user.PasswordHash, password)
}

func (m *memStore) TwoFactorProviders(ctx context.Context, user *User) ([]string, error) {
	if !user.TwoFactorEnabled {
		return nil, nil
	}
	return []string{"Email"}, nil
}
