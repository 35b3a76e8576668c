package credentials

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu   sync.RWMutex
	cred Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

func (s *MemoryStore) Set(_ context.Context, c Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cred = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.cred = Credential{}
	s.mu.Unlock()
	return nil
}
