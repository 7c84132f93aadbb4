package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// Chain identifies the network a pool lives on.
type Chain string

const ChainArbitrum Chain = "arb"

// Venue identifies an AMM deployment.
type Venue string

const (
	VenueUniV3   Venue = "univ3"
	VenueSushiV2 Venue = "sushiv2"
)

// MaxFeePpm and MaxFeeBps are the upper bounds of the two fee scales.
const (
	MaxFeePpm = 1_000_000
	MaxFeeBps = 10_000
)

// PoolState is the latest snapshot of one pool. It is a closed sum type: the
// only implementations are ConcentratedLiquidityState and
// ConstantProductState, so a type switch over it is exhaustive.
type PoolState interface {
	ChainID() Chain
	VenueID() Venue
	Address() string
	Block() uint64
	Validate() error

	poolState()
}

// ConcentratedLiquidityState is a Uniswap V3 style pool at its current tick.
// Prices are token1 per token0.
type ConcentratedLiquidityState struct {
	Chain        Chain
	Venue        Venue
	PoolAddress  string
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
	FeePpm       uint32
	BlockNumber  uint64
}

// NewConcentratedLiquidityState builds a validated state. The pool address is
// lowercased.
func NewConcentratedLiquidityState(chain Chain, venue Venue, pool string, sqrtPriceX96 *big.Int, tick int32, liquidity *big.Int, feePpm uint32, block uint64) (ConcentratedLiquidityState, error) {
	s := ConcentratedLiquidityState{
		Chain:        chain,
		Venue:        venue,
		PoolAddress:  strings.ToLower(pool),
		SqrtPriceX96: sqrtPriceX96,
		Tick:         tick,
		Liquidity:    liquidity,
		FeePpm:       feePpm,
		BlockNumber:  block,
	}
	if err := s.Validate(); err != nil {
		return ConcentratedLiquidityState{}, err
	}
	return s, nil
}

func (s ConcentratedLiquidityState) ChainID() Chain  { return s.Chain }
func (s ConcentratedLiquidityState) VenueID() Venue  { return s.Venue }
func (s ConcentratedLiquidityState) Address() string { return s.PoolAddress }
func (s ConcentratedLiquidityState) Block() uint64   { return s.BlockNumber }
func (ConcentratedLiquidityState) poolState()        {}

// Validate checks the fields a simulation depends on.
func (s ConcentratedLiquidityState) Validate() error {
	if s.PoolAddress == "" {
		return fmt.Errorf("%w: %s pool address is empty", ErrStaleOrInvalidState, s.Venue)
	}
	if s.SqrtPriceX96 == nil || s.SqrtPriceX96.Sign() <= 0 {
		return fmt.Errorf("%w: %s sqrtPriceX96 must be > 0, got %s", ErrStaleOrInvalidState, s.PoolAddress, bigString(s.SqrtPriceX96))
	}
	if s.Liquidity == nil || s.Liquidity.Sign() <= 0 {
		return fmt.Errorf("%w: %s liquidity must be > 0, got %s", ErrStaleOrInvalidState, s.PoolAddress, bigString(s.Liquidity))
	}
	if s.FeePpm > MaxFeePpm {
		return fmt.Errorf("%w: %s fee %d ppm exceeds %d", ErrStaleOrInvalidState, s.PoolAddress, s.FeePpm, MaxFeePpm)
	}
	return nil
}

// WithSqrtPrice returns a copy of s at a new price. Big integers are copied so
// the result shares no memory with s.
func (s ConcentratedLiquidityState) WithSqrtPrice(sqrtPriceX96 *big.Int) ConcentratedLiquidityState {
	out := s.Clone()
	out.SqrtPriceX96 = new(big.Int).Set(sqrtPriceX96)
	return out
}

// Clone returns a deep copy.
func (s ConcentratedLiquidityState) Clone() ConcentratedLiquidityState {
	out := s
	out.SqrtPriceX96 = cloneBig(s.SqrtPriceX96)
	out.Liquidity = cloneBig(s.Liquidity)
	return out
}

// ConstantProductState is a Uniswap V2 style pair.
type ConstantProductState struct {
	Chain       Chain
	Venue       Venue
	PoolAddress string
	Reserve0    *big.Int
	Reserve1    *big.Int
	BlockNumber uint64
}

// NewConstantProductState builds a validated state. The pool address is
// lowercased.
func NewConstantProductState(chain Chain, venue Venue, pool string, reserve0, reserve1 *big.Int, block uint64) (ConstantProductState, error) {
	s := ConstantProductState{
		Chain:       chain,
		Venue:       venue,
		PoolAddress: strings.ToLower(pool),
		Reserve0:    reserve0,
		Reserve1:    reserve1,
		BlockNumber: block,
	}
	if err := s.Validate(); err != nil {
		return ConstantProductState{}, err
	}
	return s, nil
}

func (s ConstantProductState) ChainID() Chain  { return s.Chain }
func (s ConstantProductState) VenueID() Venue  { return s.Venue }
func (s ConstantProductState) Address() string { return s.PoolAddress }
func (s ConstantProductState) Block() uint64   { return s.BlockNumber }
func (ConstantProductState) poolState()        {}

// Validate checks the fields a simulation depends on.
func (s ConstantProductState) Validate() error {
	if s.PoolAddress == "" {
		return fmt.Errorf("%w: %s pool address is empty", ErrStaleOrInvalidState, s.Venue)
	}
	if s.Reserve0 == nil || s.Reserve0.Sign() <= 0 {
		return fmt.Errorf("%w: %s reserve0 must be > 0, got %s", ErrStaleOrInvalidState, s.PoolAddress, bigString(s.Reserve0))
	}
	if s.Reserve1 == nil || s.Reserve1.Sign() <= 0 {
		return fmt.Errorf("%w: %s reserve1 must be > 0, got %s", ErrStaleOrInvalidState, s.PoolAddress, bigString(s.Reserve1))
	}
	return nil
}

// Clone returns a deep copy.
func (s ConstantProductState) Clone() ConstantProductState {
	out := s
	out.Reserve0 = cloneBig(s.Reserve0)
	out.Reserve1 = cloneBig(s.Reserve1)
	return out
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}

// Compile-time sum type membership.
var (
	_ PoolState = ConcentratedLiquidityState{}
	_ PoolState = ConstantProductState{}
)
