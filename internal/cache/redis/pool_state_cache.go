package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// poolStateRecord is the JSON stored under a pool-state key. Big integers
// are decimal strings.
type poolStateRecord struct {
	Chain        domain.Chain `json:"chain"`
	Venue        domain.Venue `json:"venue"`
	PoolAddress  string       `json:"pool_address"`
	Kind         string       `json:"kind"`
	SqrtPriceX96 string       `json:"sqrtPriceX96,omitempty"`
	Tick         int32        `json:"tick,omitempty"`
	Liquidity    string       `json:"liquidity,omitempty"`
	Fee          uint32       `json:"fee,omitempty"`
	Reserve0     string       `json:"reserve0,omitempty"`
	Reserve1     string       `json:"reserve1,omitempty"`
	BlockNumber  uint64       `json:"block_number"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

const (
	kindConcentrated    = "concentrated"
	kindConstantProduct = "constant_product"
)

// PoolStateCache implements domain.PoolStateCache with one JSON string per
// pool at "poolstate:{chain}:{venue}:{pool}".
type PoolStateCache struct {
	rdb *redis.Client
	now func() time.Time
}

// NewPoolStateCache creates a PoolStateCache backed by the given Client.
func NewPoolStateCache(c *Client) *PoolStateCache {
	return &PoolStateCache{rdb: c.Underlying(), now: time.Now}
}

// Put stores state, replacing any previous snapshot of the same pool.
func (pc *PoolStateCache) Put(ctx context.Context, state domain.PoolState) error {
	data, err := encodePoolState(state, pc.now().UTC())
	if err != nil {
		return fmt.Errorf("redis: encode pool state %s: %w", state.Address(), err)
	}
	key := poolStateKey(state.ChainID(), state.VenueID(), state.Address())
	if err := pc.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: put pool state %s: %w", key, err)
	}
	return nil
}

// GetConcentrated returns the cached concentrated-liquidity snapshot.
func (pc *PoolStateCache) GetConcentrated(ctx context.Context, chain domain.Chain, venue domain.Venue, pool string) (domain.ConcentratedLiquidityState, error) {
	state, err := pc.get(ctx, chain, venue, pool)
	if err != nil {
		return domain.ConcentratedLiquidityState{}, err
	}
	cl, ok := state.(domain.ConcentratedLiquidityState)
	if !ok {
		return domain.ConcentratedLiquidityState{}, fmt.Errorf("%w: %s holds %T", domain.ErrStaleOrInvalidState, pool, state)
	}
	return cl, nil
}

// GetConstantProduct returns the cached constant-product snapshot.
func (pc *PoolStateCache) GetConstantProduct(ctx context.Context, chain domain.Chain, venue domain.Venue, pool string) (domain.ConstantProductState, error) {
	state, err := pc.get(ctx, chain, venue, pool)
	if err != nil {
		return domain.ConstantProductState{}, err
	}
	cp, ok := state.(domain.ConstantProductState)
	if !ok {
		return domain.ConstantProductState{}, fmt.Errorf("%w: %s holds %T", domain.ErrStaleOrInvalidState, pool, state)
	}
	return cp, nil
}

func (pc *PoolStateCache) get(ctx context.Context, chain domain.Chain, venue domain.Venue, pool string) (domain.PoolState, error) {
	key := poolStateKey(chain, venue, pool)
	data, err := pc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get pool state %s: %w", key, err)
	}
	return decodePoolState(data)
}

func encodePoolState(state domain.PoolState, updatedAt time.Time) ([]byte, error) {
	rec := poolStateRecord{
		Chain:       state.ChainID(),
		Venue:       state.VenueID(),
		PoolAddress: state.Address(),
		BlockNumber: state.Block(),
		UpdatedAt:   updatedAt,
	}
	switch s := state.(type) {
	case domain.ConcentratedLiquidityState:
		if err := s.Validate(); err != nil {
			return nil, err
		}
		rec.Kind = kindConcentrated
		rec.SqrtPriceX96 = s.SqrtPriceX96.String()
		rec.Tick = s.Tick
		rec.Liquidity = s.Liquidity.String()
		rec.Fee = s.FeePpm
	case domain.ConstantProductState:
		if err := s.Validate(); err != nil {
			return nil, err
		}
		rec.Kind = kindConstantProduct
		rec.Reserve0 = s.Reserve0.String()
		rec.Reserve1 = s.Reserve1.String()
	default:
		return nil, fmt.Errorf("%w: unsupported pool state %T", domain.ErrInvalidParameter, state)
	}
	return json.Marshal(rec)
}

func decodePoolState(data []byte) (domain.PoolState, error) {
	var rec poolStateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStaleOrInvalidState, err)
	}

	switch rec.Kind {
	case kindConcentrated:
		sqrtP, err := parseStateInt(rec.SqrtPriceX96, "sqrtPriceX96")
		if err != nil {
			return nil, err
		}
		liquidity, err := parseStateInt(rec.Liquidity, "liquidity")
		if err != nil {
			return nil, err
		}
		return domain.NewConcentratedLiquidityState(rec.Chain, rec.Venue, rec.PoolAddress, sqrtP, rec.Tick, liquidity, rec.Fee, rec.BlockNumber)
	case kindConstantProduct:
		r0, err := parseStateInt(rec.Reserve0, "reserve0")
		if err != nil {
			return nil, err
		}
		r1, err := parseStateInt(rec.Reserve1, "reserve1")
		if err != nil {
			return nil, err
		}
		return domain.NewConstantProductState(rec.Chain, rec.Venue, rec.PoolAddress, r0, r1, rec.BlockNumber)
	default:
		return nil, fmt.Errorf("%w: unknown pool kind %q", domain.ErrStaleOrInvalidState, rec.Kind)
	}
}

func parseStateInt(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an integer: %q", domain.ErrStaleOrInvalidState, field, s)
	}
	return v, nil
}

// Compile-time interface check.
var _ domain.PoolStateCache = (*PoolStateCache)(nil)
