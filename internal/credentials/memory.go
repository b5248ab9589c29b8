package credentials

import (
	"context"
	"sync"
)

// MemoryStore keeps one bundle in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	creds Credentials
	set   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return nil, ErrNotFound
	}
	return s.creds.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds.Clone()
	if s.creds == nil {
		s.creds = Credentials{}
	}
	s.set = true
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	s.set = false
	return nil
}
