package oracle

import (
	"context"
	"sync"

	"tokengate/pkg/domain"
)

type balanceKey struct {
	token  domain.Address
	holder domain.Address
}

type nftKey struct {
	nft     domain.Address
	tokenID uint64
}

// StaticOracle serves balances and ownership from in-memory tables. It backs
// development deployments and tests; production wires an adapter against the
// real token ledgers.
type StaticOracle struct {
	mu       sync.RWMutex
	balances map[balanceKey]uint64
	owners   map[nftKey]domain.Address
}

// NewStatic creates an empty static oracle.
func NewStatic() *StaticOracle {
	return &StaticOracle{
		balances: make(map[balanceKey]uint64),
		owners:   make(map[nftKey]domain.Address),
	}
}

// SetBalance records a holder's balance for a token.
func (o *StaticOracle) SetBalance(token, holder domain.Address, balance uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.balances[balanceKey{token: token, holder: holder}] = balance
}

// SetOwner records the owner of an NFT token id.
func (o *StaticOracle) SetOwner(nft domain.Address, tokenID uint64, owner domain.Address) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.owners[nftKey{nft: nft, tokenID: tokenID}] = owner
}

// BalanceOf returns the recorded balance, zero when unknown.
func (o *StaticOracle) BalanceOf(_ context.Context, token, holder domain.Address) (uint64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.balances[balanceKey{token: token, holder: holder}], nil
}

// OwnerOf returns the recorded owner, the zero address when unknown.
func (o *StaticOracle) OwnerOf(_ context.Context, nft domain.Address, tokenID uint64) (domain.Address, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	owner, ok := o.owners[nftKey{nft: nft, tokenID: tokenID}]
	if !ok {
		return domain.ZeroAddress, nil
	}
	return owner, nil
}
