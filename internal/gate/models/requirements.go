package models

import "tokengate/pkg/domain"

// TokenRequirement gates admission on a minimum fungible-token balance.
// A zero token address means the clause is not enforced.
type TokenRequirement struct {
	TokenAddress domain.Address `json:"token_address"`
	MinBalance   uint64         `json:"min_balance"`
}

// Enforced reports whether the clause participates in admission checks.
func (r TokenRequirement) Enforced() bool { return !r.TokenAddress.IsZero() }

// NFTRequirement gates admission on ownership of one exact NFT token id.
// A zero NFT address means the clause is not enforced.
type NFTRequirement struct {
	NFTAddress domain.Address `json:"nft_address"`
	TokenID    uint64         `json:"token_id"`
}

// Enforced reports whether the clause participates in admission checks.
func (r NFTRequirement) Enforced() bool { return !r.NFTAddress.IsZero() }

// Requirements is the conjunction of both admission clauses. Both enforced
// clauses must hold for a user to join.
type Requirements struct {
	Token TokenRequirement `json:"token"`
	NFT   NFTRequirement   `json:"nft"`
}
