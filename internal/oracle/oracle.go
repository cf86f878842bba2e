// Package oracle defines the read-only queries against external token and
// NFT ledgers that admission checks depend on. The registries never mutate
// oracle state; answers are treated as synchronous, side-effect-free reads.
package oracle

import (
	"context"

	"tokengate/pkg/domain"
)

// BalanceOracle answers fungible-token balance queries.
type BalanceOracle interface {
	BalanceOf(ctx context.Context, token domain.Address, holder domain.Address) (uint64, error)
}

// OwnershipOracle answers NFT ownership queries. An unknown token id
// resolves to the zero address, not an error.
type OwnershipOracle interface {
	OwnerOf(ctx context.Context, nft domain.Address, tokenID uint64) (domain.Address, error)
}

// Oracle bundles both query surfaces.
type Oracle interface {
	BalanceOracle
	OwnershipOracle
}
