// Package models defines the user-registry delegation record.
package models

import (
	"time"

	"tokengate/pkg/domain"
)

// DelegationRecord binds a primary address to its derived signing key.
//
// Per-address state machine: Unregistered -> Active -> Revoked -> Active ...
// Re-registration after revocation is permitted. The nonce increases
// monotonically across the address's lifetime and is never reset; revocation
// keeps the forward record (nonce and stale key included) for history.
type DelegationRecord struct {
	Address      domain.Address      `json:"address"`
	Key          domain.DelegatedKey `json:"delegated_key"`
	Nonce        uint64              `json:"nonce"`
	Active       bool                `json:"active"`
	RegisteredAt time.Time           `json:"registered_at"`
}

// IsActive reports whether the delegation is currently usable.
func (r *DelegationRecord) IsActive() bool { return r.Active }
