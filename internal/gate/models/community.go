package models

import (
	"strings"
	"time"

	"tokengate/pkg/domain"
	dErrors "tokengate/pkg/domain-errors"
)

// Community is the aggregate root for an access-gated community.
//
// Invariants:
//   - Owner is never the zero address
//   - Name and Description are non-empty
//   - Created inactive ("pending"); only the owner activates it
//   - Deletion is logical: the record is retained with Active=false forever
//     (append-only ledger retention model)
//   - ID is assigned once from a monotonic sequence and never reused
type Community struct {
	ID           domain.CommunityID `json:"id"`
	Owner        domain.Address     `json:"owner"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Active       bool               `json:"active"`
	Requirements Requirements       `json:"requirements"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// NewCommunity validates invariants and builds a pending community.
// The store assigns the ID at creation time.
func NewCommunity(owner domain.Address, name, description string, reqs Requirements, now time.Time) (*Community, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "community owner cannot be the zero address")
	}
	if strings.TrimSpace(name) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "community name cannot be empty")
	}
	if strings.TrimSpace(description) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "community description cannot be empty")
	}
	return &Community{
		Owner:        owner,
		Name:         name,
		Description:  description,
		Active:       false,
		Requirements: reqs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsActive reports whether the community accepts joins and channel creation.
func (c *Community) IsActive() bool { return c.Active }

// IsOwnedBy reports whether addr is the community owner.
func (c *Community) IsOwnedBy(addr domain.Address) bool { return c.Owner == addr }

// WellFormed re-checks construction invariants. Always true post-creation;
// transition paths re-validate defensively before mutating.
func (c *Community) WellFormed() bool {
	return !c.Owner.IsZero() && strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Description) != ""
}

// CanActivate checks the pending/inactive -> active transition.
func (c *Community) CanActivate() error {
	if c.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "community is already active")
	}
	return nil
}

// ApplyActivation transitions the community to active.
func (c *Community) ApplyActivation(now time.Time) {
	c.Active = true
	c.UpdatedAt = now
}

// CanDeactivate checks the active -> inactive transition.
func (c *Community) CanDeactivate() error {
	if !c.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "community is not active")
	}
	return nil
}

// ApplyDeactivation transitions the community to inactive. The record stays
// in the table; storage is never reclaimed.
func (c *Community) ApplyDeactivation(now time.Time) {
	c.Active = false
	c.UpdatedAt = now
}

// ApplyRequirements replaces the admission requirements wholesale.
func (c *Community) ApplyRequirements(reqs Requirements, now time.Time) {
	c.Requirements = reqs
	c.UpdatedAt = now
}
