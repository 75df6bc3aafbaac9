package storage

import (
	"fmt"
	"sync"

	"github.com/amaydixit11/locvault/pkg/crypto"
)

// MemoryStore keeps payloads in a map. Contents are lost on exit.
type MemoryStore struct {
	mu       sync.RWMutex
	payloads map[string]*crypto.EncryptedPayload
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payloads: make(map[string]*crypto.EncryptedPayload)}
}

func (s *MemoryStore) Put(owner string, payload *crypto.EncryptedPayload) error {
	if payload == nil {
		return fmt.Errorf("nil payload for owner %q", owner)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[owner] = clonePayload(payload)
	return nil
}

func (s *MemoryStore) Get(owner string) (*crypto.EncryptedPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payloads[owner]
	if !ok {
		return nil, ErrNotFound{Owner: owner}
	}
	return clonePayload(p), nil
}

func (s *MemoryStore) Delete(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payloads[owner]; !ok {
		return ErrNotFound{Owner: owner}
	}
	delete(s.payloads, owner)
	return nil
}

func (s *MemoryStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payloads), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
