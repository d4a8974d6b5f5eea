package credentials

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process [Store].
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]User
	byLogin map[string]int64
	byEmail map[string]int64
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[int64]User),
		byLogin: make(map[string]int64),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

// fold mirrors lower() in the postgres queries. Surrounding whitespace is
// significant here; the engine trims identifiers before lookup.
func fold(s string) string {
	return strings.ToLower(s)
}

func (m *MemoryStore) FindByCredential(_ context.Context, value string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := fold(value)
	if id, ok := m.byLogin[key]; ok {
		return m.byID[id], nil
	}
	if id, ok := m.byEmail[key]; ok {
		return m.byID[id], nil
	}
	return User{}, ErrNotFound
}

func (m *MemoryStore) FindByLoginOrEmail(_ context.Context, login, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.byLogin[fold(login)]; ok {
		return m.byID[id], nil
	}
	if id, ok := m.byEmail[fold(email)]; ok {
		return m.byID[id], nil
	}
	return User{}, ErrNotFound
}

func (m *MemoryStore) FindByID(_ context.Context, id int64) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// Create assigns the next id. The uniqueness check and insert happen under one
// lock, so concurrent registrations of the same login cannot both succeed.
func (m *MemoryStore) Create(_ context.Context, nu NewUser) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	login, email := fold(nu.Login), fold(nu.Email)
	if _, ok := m.byLogin[login]; ok {
		return User{}, ErrTaken
	}
	if _, ok := m.byEmail[email]; ok {
		return User{}, ErrTaken
	}

	m.nextID++
	u := User{
		ID:           m.nextID,
		Login:        nu.Login,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
		RegisteredAt: m.now().UTC(),
	}
	m.byID[u.ID] = u
	m.byLogin[login] = u.ID
	m.byEmail[email] = u.ID
	return u, nil
}

// Len returns the number of stored users.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
