package store

import (
	"context"
	"sync"

	"tokengate/internal/gate/models"
	"tokengate/pkg/domain"
	"tokengate/pkg/platform/sentinel"
)

// MemoryStore keeps the whole token-gate state in process memory behind one
// lock. Records are copied on the way in and out so callers never alias
// stored state. Deletions are logical; nothing is ever removed from the
// primary tables, matching the append-only retention model.
type MemoryStore struct {
	mu sync.RWMutex

	communities       map[domain.CommunityID]*models.Community
	channels          map[domain.ChannelID]*models.Channel
	communityChannels map[domain.CommunityID][]domain.ChannelID
	memberships       map[domain.Address][]domain.CommunityID
	feeBalance        domain.FeeAmount

	nextCommunityID domain.CommunityID
	nextChannelID   domain.ChannelID
}

// NewMemory creates an empty in-memory token-gate store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		communities:       make(map[domain.CommunityID]*models.Community),
		channels:          make(map[domain.ChannelID]*models.Channel),
		communityChannels: make(map[domain.CommunityID][]domain.ChannelID),
		memberships:       make(map[domain.Address][]domain.CommunityID),
	}
}

// CreateCommunity assigns the next sequence id and stores the record.
func (s *MemoryStore) CreateCommunity(_ context.Context, c *models.Community) (domain.CommunityID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextCommunityID
	s.nextCommunityID++

	stored := *c
	stored.ID = id
	s.communities[id] = &stored
	return id, nil
}

// FindCommunity returns a copy of the community record.
func (s *MemoryStore) FindCommunity(_ context.Context, id domain.CommunityID) (*models.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.communities[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *c
	return &out, nil
}

// UpdateCommunity runs validate then mutate under the lock so the transition
// is atomic with respect to other store callers.
func (s *MemoryStore) UpdateCommunity(_ context.Context, id domain.CommunityID, validate func(*models.Community) error, mutate func(*models.Community)) (*models.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.communities[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	mutate(c)
	out := *c
	return &out, nil
}

// CreateChannel assigns the next sequence id, stores the record, and appends
// it to its community's channel list.
func (s *MemoryStore) CreateChannel(_ context.Context, ch *models.Channel) (domain.ChannelID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.communities[ch.CommunityID]; !ok {
		return 0, sentinel.ErrNotFound
	}

	id := s.nextChannelID
	s.nextChannelID++

	stored := *ch
	stored.ID = id
	s.channels[id] = &stored
	s.communityChannels[ch.CommunityID] = append(s.communityChannels[ch.CommunityID], id)
	return id, nil
}

// FindChannel returns a copy of the channel record.
func (s *MemoryStore) FindChannel(_ context.Context, id domain.ChannelID) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *ch
	return &out, nil
}

// UpdateChannel runs validate then mutate under the lock.
func (s *MemoryStore) UpdateChannel(_ context.Context, id domain.ChannelID, validate func(*models.Channel) error, mutate func(*models.Channel)) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(ch); err != nil {
		return nil, err
	}
	mutate(ch)
	out := *ch
	return &out, nil
}

// ListCommunityChannels returns copies of the channels currently attached to
// the community.
func (s *MemoryStore) ListCommunityChannels(_ context.Context, id domain.CommunityID) ([]*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.communityChannels[id]
	out := make([]*models.Channel, 0, len(ids))
	for _, chID := range ids {
		if ch, ok := s.channels[chID]; ok {
			cp := *ch
			out = append(out, &cp)
		}
	}
	return out, nil
}

// DeactivateCommunityChannels flips every active attached channel inactive
// and clears the community's channel list. Channel records are retained.
func (s *MemoryStore) DeactivateCommunityChannels(_ context.Context, id domain.CommunityID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deactivated := 0
	for _, chID := range s.communityChannels[id] {
		if ch, ok := s.channels[chID]; ok && ch.Active {
			ch.Active = false
			deactivated++
		}
	}
	delete(s.communityChannels, id)
	return deactivated, nil
}

// DetachChannel swap-removes the channel id from its community's list.
func (s *MemoryStore) DetachChannel(_ context.Context, communityID domain.CommunityID, channelID domain.ChannelID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.communityChannels[communityID]
	for i, chID := range ids {
		if chID == channelID {
			ids[i] = ids[len(ids)-1]
			s.communityChannels[communityID] = ids[:len(ids)-1]
			return nil
		}
	}
	return nil
}

// AddMembership records the membership; conflict when already a member.
func (s *MemoryStore) AddMembership(_ context.Context, user domain.Address, id domain.CommunityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.memberships[user] {
		if existing == id {
			return sentinel.ErrConflict
		}
	}
	s.memberships[user] = append(s.memberships[user], id)
	return nil
}

// RemoveMembership swap-removes the first matching entry. Order is not
// preserved. Returns false when the user was not a member.
func (s *MemoryStore) RemoveMembership(_ context.Context, user domain.Address, id domain.CommunityID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.memberships[user]
	for i, existing := range ids {
		if existing == id {
			ids[i] = ids[len(ids)-1]
			s.memberships[user] = ids[:len(ids)-1]
			return true, nil
		}
	}
	return false, nil
}

// RemoveAllMemberships strips the community from every member's list.
func (s *MemoryStore) RemoveAllMemberships(_ context.Context, id domain.CommunityID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for user, ids := range s.memberships {
		for i, existing := range ids {
			if existing == id {
				ids[i] = ids[len(ids)-1]
				s.memberships[user] = ids[:len(ids)-1]
				removed++
				break
			}
		}
	}
	return removed, nil
}

// ListMemberships returns a copy of the user's community ids.
func (s *MemoryStore) ListMemberships(_ context.Context, user domain.Address) ([]domain.CommunityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CommunityID{}, s.memberships[user]...), nil
}

// AddFees credits the custodial balance.
func (s *MemoryStore) AddFees(_ context.Context, amount domain.FeeAmount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeBalance += amount
	return nil
}

// WithdrawAllFees zeroes the custodial balance and returns what was held.
func (s *MemoryStore) WithdrawAllFees(_ context.Context) (domain.FeeAmount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount := s.feeBalance
	s.feeBalance = 0
	return amount, nil
}

// FeeBalance reports the custodial balance.
func (s *MemoryStore) FeeBalance(_ context.Context) (domain.FeeAmount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeBalance, nil
}
