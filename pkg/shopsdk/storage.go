package shopsdk

import (
	"context"
	"sync"
)

// Storage keys under which credentials are persisted.
const (
	KeyToken = "auth_token"
	KeyUser  = "user"
)

// Credentials is what survives a restart: the access token and the user
// snapshot it was issued for.
type Credentials struct {
	Token string
	User  *User
}

// Empty reports whether no token is held.
func (c Credentials) Empty() bool { return c.Token == "" }

// TokenStorage persists credentials between runs. Implementations must be
// safe for concurrent use. Load returns empty Credentials, not an error,
// when nothing is stored.
type TokenStorage interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}

// MemoryStorage is a process-local TokenStorage.
type MemoryStorage struct {
	mu    sync.RWMutex
	creds Credentials
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (m *MemoryStorage) Load(context.Context) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds, nil
}

func (m *MemoryStorage) Save(_ context.Context, creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = creds
	return nil
}

func (m *MemoryStorage) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = Credentials{}
	return nil
}
