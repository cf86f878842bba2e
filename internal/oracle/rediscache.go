package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tokengate/pkg/domain"
)

// CachedOracle is a read-through cache in front of another oracle. Oracle
// queries sit on the admission hot path; balances and owners change far less
// often than users attempt joins, so a short TTL trades a bounded staleness
// window for round trips saved against the external ledger.
type CachedOracle struct {
	next  Oracle
	redis redis.Cmdable
	ttl   time.Duration
}

// NewCached wraps next with a Redis-backed cache.
func NewCached(next Oracle, client redis.Cmdable, ttl time.Duration) *CachedOracle {
	return &CachedOracle{next: next, redis: client, ttl: ttl}
}

// BalanceOf serves from cache when possible, falling back to the inner
// oracle. Cache failures degrade to direct queries, never to errors.
func (o *CachedOracle) BalanceOf(ctx context.Context, token, holder domain.Address) (uint64, error) {
	key := fmt.Sprintf("oracle:balance:%s:%s", token, holder)

	if raw, err := o.redis.Get(ctx, key).Result(); err == nil {
		if v, perr := strconv.ParseUint(raw, 10, 64); perr == nil {
			return v, nil
		}
	} else if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return 0, ctx.Err()
	}

	balance, err := o.next.BalanceOf(ctx, token, holder)
	if err != nil {
		return 0, err
	}
	o.redis.Set(ctx, key, strconv.FormatUint(balance, 10), o.ttl)
	return balance, nil
}

// OwnerOf serves from cache when possible, falling back to the inner oracle.
func (o *CachedOracle) OwnerOf(ctx context.Context, nft domain.Address, tokenID uint64) (domain.Address, error) {
	key := fmt.Sprintf("oracle:owner:%s:%d", nft, tokenID)

	if raw, err := o.redis.Get(ctx, key).Result(); err == nil {
		if addr, perr := domain.ParseAddress(raw); perr == nil {
			return addr, nil
		}
	} else if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return domain.ZeroAddress, ctx.Err()
	}

	owner, err := o.next.OwnerOf(ctx, nft, tokenID)
	if err != nil {
		return domain.ZeroAddress, err
	}
	o.redis.Set(ctx, key, owner.String(), o.ttl)
	return owner, nil
}
