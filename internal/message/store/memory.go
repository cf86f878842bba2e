// Package store persists message anchors.
package store

import (
	"context"
	"sync"

	"tokengate/internal/message/models"
	"tokengate/pkg/domain"
	"tokengate/pkg/platform/sentinel"
)

// MemoryStore keeps the message table in process memory. An occupied id is
// permanent; records are never removed or overwritten.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[domain.MessageID]*models.Message
}

// NewMemory creates an empty in-memory message store.
func NewMemory() *MemoryStore {
	return &MemoryStore{messages: make(map[domain.MessageID]*models.Message)}
}

// Create inserts the record; conflict when the id is occupied.
func (s *MemoryStore) Create(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ID]; ok {
		return sentinel.ErrConflict
	}
	stored := *msg
	s.messages[msg.ID] = &stored
	return nil
}

// Find returns a copy of the record.
func (s *MemoryStore) Find(_ context.Context, id domain.MessageID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *msg
	return &out, nil
}
