// Package optimizer sizes a detected candidate by searching the trade size
// that maximizes simulated round-trip profit.
package optimizer

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/atomicnexus/internal/amm"
	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// Config holds the sizing parameters. Amounts are in token1's smallest unit.
type Config struct {
	Token0                string
	Token1                string
	Token1Decimals        int
	ConstantProductFeeBps int64
	MinAmountIn           *big.Int
	MaxAmountIn           *big.Int
	// Iterations is the ternary-search budget; zero selects DefaultIterations.
	Iterations     int
	MaxSlippageBps int
	TTLBlocks      int64
}

// Optimizer turns candidates into plans.
type Optimizer struct {
	cfg Config
	now func() time.Time
}

// New returns an optimizer. Parameters are validated by Optimize.
func New(cfg Config) *Optimizer {
	return &Optimizer{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Optimize searches [MinAmountIn, MaxAmountIn] for the most profitable input
// and returns a plan for it. A nil plan with a nil error means no size in the
// range is profitable.
func (o *Optimizer) Optimize(c domain.Candidate, cl domain.ConcentratedLiquidityState, cp domain.ConstantProductState) (*domain.Plan, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	rt, err := NewRoundTrip(c, o.cfg.Token0, o.cfg.Token1, cl, cp, amm.Fees{ConstantProductBps: o.cfg.ConstantProductFeeBps})
	if err != nil {
		return nil, err
	}

	best, profit, err := TernarySearchMax(o.cfg.MinAmountIn, o.cfg.MaxAmountIn, o.cfg.Iterations, rt.Profit)
	if err != nil {
		return nil, fmt.Errorf("optimize %s: %w", c.ID, err)
	}
	if profit.Sign() <= 0 {
		return nil, nil
	}

	out, err := rt.Simulate(best)
	if err != nil {
		return nil, fmt.Errorf("optimize %s: %w", c.ID, err)
	}

	minOut := new(big.Int).Mul(out, big.NewInt(int64(domain.MaxFeeBps-o.cfg.MaxSlippageBps)))
	minOut.Quo(minOut, big.NewInt(domain.MaxFeeBps))

	return &domain.Plan{
		ID:                   c.ID,
		Chain:                c.Chain,
		AmountIn:             best,
		ExpectedAmountOut:    out,
		ExpectedNetProfitUSD: ToDisplay(profit, o.cfg.Token1Decimals),
		Constraints: domain.PlanConstraints{
			MinAmountOut:   minOut,
			MaxSlippageBps: o.cfg.MaxSlippageBps,
			TTLBlocks:      uint64(o.cfg.TTLBlocks),
		},
		Steps: []domain.PlanStep{
			{Venue: c.VenuePath[0], PoolAddress: c.PoolPath[0], TokenIn: c.TokenPath[0], TokenOut: c.TokenPath[1]},
			{Venue: c.VenuePath[1], PoolAddress: c.PoolPath[1], TokenIn: c.TokenPath[1], TokenOut: c.TokenPath[2]},
		},
		SnapshotBlock: c.SnapshotBlock,
		CreatedAt:     o.now(),
	}, nil
}

func (o *Optimizer) validate() error {
	lo, hi := o.cfg.MinAmountIn, o.cfg.MaxAmountIn
	if lo == nil || hi == nil || lo.Sign() <= 0 || hi.Sign() <= 0 {
		return fmt.Errorf("%w: search bounds must be > 0, got [%v, %v]", domain.ErrSearchFailed, lo, hi)
	}
	if lo.Cmp(hi) > 0 {
		return fmt.Errorf("%w: min amount %s exceeds max amount %s", domain.ErrSearchFailed, lo, hi)
	}
	if o.cfg.Iterations < 0 {
		return fmt.Errorf("%w: iterations must be >= 0, got %d", domain.ErrSearchFailed, o.cfg.Iterations)
	}
	if o.cfg.TTLBlocks <= 0 {
		return fmt.Errorf("%w: ttl blocks must be > 0, got %d", domain.ErrInvalidParameter, o.cfg.TTLBlocks)
	}
	if o.cfg.MaxSlippageBps < 0 || o.cfg.MaxSlippageBps > domain.MaxFeeBps {
		return fmt.Errorf("%w: max slippage must be in [0, %d] bps, got %d",
			domain.ErrInvalidParameter, domain.MaxFeeBps, o.cfg.MaxSlippageBps)
	}
	if o.cfg.Token1Decimals < 0 {
		return fmt.Errorf("%w: token1 decimals must be >= 0, got %d", domain.ErrInvalidParameter, o.cfg.Token1Decimals)
	}
	return nil
}

// ToDisplay converts an amount in smallest units to a float with at most six
// fractional digits, truncated toward zero.
func ToDisplay(amount *big.Int, decimals int) float64 {
	return decimal.NewFromBigInt(amount, -int32(decimals)).Truncate(6).InexactFloat64()
}
