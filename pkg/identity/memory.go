package identity

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Lookup for tests and standalone runs without a
// provisioned accounts database.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Identity // keyed by email + "\x00" + code
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Identity),
	}
}

// Add registers an account under the given activation code.
func (s *MemoryStore) Add(ident Identity, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[memoryKey(ident.Email, code)] = ident
}

// FindByEmailAndCode implements Lookup.
func (s *MemoryStore) FindByEmailAndCode(_ context.Context, email, code string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ident, ok := s.accounts[memoryKey(email, code)]
	if !ok {
		return nil, ErrNotFound
	}

	found := ident
	return &found, nil
}

func memoryKey(email, code string) string {
	return strings.ToLower(strings.TrimSpace(email)) + "\x00" + strings.TrimSpace(code)
}
