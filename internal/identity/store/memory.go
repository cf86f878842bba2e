// Package store persists delegation records.
package store

import (
	"context"
	"sync"

	"tokengate/internal/identity/models"
	"tokengate/pkg/domain"
	"tokengate/pkg/platform/sentinel"
)

// MemoryStore keeps the delegation table and reverse key index in process
// memory. Records are copied in and out so callers never alias stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[domain.Address]*models.DelegationRecord
	byKey   map[domain.DelegatedKey]domain.Address
}

// NewMemory creates an empty in-memory delegation store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: make(map[domain.Address]*models.DelegationRecord),
		byKey:   make(map[domain.DelegatedKey]domain.Address),
	}
}

// Find returns a copy of the forward record.
func (s *MemoryStore) Find(_ context.Context, addr domain.Address) (*models.DelegationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *rec
	return &out, nil
}

// FindByKey resolves the reverse index.
func (s *MemoryStore) FindByKey(_ context.Context, key domain.DelegatedKey) (domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr, ok := s.byKey[key]
	if !ok {
		return domain.ZeroAddress, sentinel.ErrNotFound
	}
	return addr, nil
}

// SaveRegistration upserts the forward record and publishes the key. A
// previous key of the same address is unpublished first.
func (s *MemoryStore) SaveRegistration(_ context.Context, rec *models.DelegationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.records[rec.Address]; ok && !old.Key.IsZero() {
		delete(s.byKey, old.Key)
	}
	stored := *rec
	s.records[rec.Address] = &stored
	s.byKey[rec.Key] = rec.Address
	return nil
}

// RevokeDelegation flips the record inactive and clears the reverse entry.
// The forward record (nonce and stale key included) is retained.
func (s *MemoryStore) RevokeDelegation(_ context.Context, addr domain.Address) (*models.DelegationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !rec.Active {
		return nil, sentinel.ErrInvalidState
	}
	rec.Active = false
	delete(s.byKey, rec.Key)
	out := *rec
	return &out, nil
}
