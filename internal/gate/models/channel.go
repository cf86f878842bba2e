package models

import (
	"strings"
	"time"

	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
)

// Channel belongs to exactly one community, referenced by id. The reference
// is weak: every dereference re-validates the community's existence and
// state at use time.
type Channel struct {
	ID           domain.ChannelID   `json:"id"`
	CommunityID  domain.CommunityID `json:"community_id"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Requirements Requirements       `json:"requirements"`
	Active       bool               `json:"active"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// NewChannel validates invariants and builds a pending channel.
func NewChannel(communityID domain.CommunityID, name, description string, reqs Requirements, now time.Time) (*Channel, error) {
	if strings.TrimSpace(name) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "channel name cannot be empty")
	}
	if strings.TrimSpace(description) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "channel description cannot be empty")
	}
	return &Channel{
		CommunityID:  communityID,
		Name:         name,
		Description:  description,
		Requirements: reqs,
		Active:       false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsActive reports whether the channel is live.
func (ch *Channel) IsActive() bool { return ch.Active }

// CanActivate checks the pending/inactive -> active transition.
func (ch *Channel) CanActivate() error {
	if ch.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "channel is already active")
	}
	return nil
}

// ApplyActivation transitions the channel to active.
func (ch *Channel) ApplyActivation(now time.Time) {
	ch.Active = true
	ch.UpdatedAt = now
}

// CanDeactivate checks the active -> inactive transition.
func (ch *Channel) CanDeactivate() error {
	if !ch.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "channel is not active")
	}
	return nil
}

// ApplyDeactivation transitions the channel to inactive. The record is
// retained; only membership in the community's channel list is dropped.
func (ch *Channel) ApplyDeactivation(now time.Time) {
	ch.Active = false
	ch.UpdatedAt = now
}
