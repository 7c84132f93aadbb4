package amm

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// SimulateConcentratedExactIn swaps amountIn through the active liquidity of
// a concentrated-liquidity pool without crossing ticks. zeroForOne sells
// token0 and moves the price down; otherwise token1 is sold and the price
// moves up. The pool fee is the state's FeePpm.
//
// A zero post-fee input returns zero and an unchanged copy of state. The
// returned state differs from state only in SqrtPriceX96.
func SimulateConcentratedExactIn(state domain.ConcentratedLiquidityState, zeroForOne bool, amountIn *big.Int) (*big.Int, domain.ConcentratedLiquidityState, error) {
	if err := validateAmountIn(amountIn); err != nil {
		return nil, domain.ConcentratedLiquidityState{}, err
	}
	if err := ValidateFeePpm(int64(state.FeePpm)); err != nil {
		return nil, domain.ConcentratedLiquidityState{}, err
	}
	if state.Liquidity == nil || state.Liquidity.Sign() <= 0 {
		return nil, domain.ConcentratedLiquidityState{}, fmt.Errorf("%w: liquidity must be > 0, got %s (pool %s)",
			domain.ErrSimulationInvalid, amountString(state.Liquidity), state.PoolAddress)
	}
	if state.SqrtPriceX96 == nil || state.SqrtPriceX96.Sign() <= 0 {
		return nil, domain.ConcentratedLiquidityState{}, fmt.Errorf("%w: sqrtPriceX96 must be > 0, got %s (pool %s)",
			domain.ErrSimulationInvalid, amountString(state.SqrtPriceX96), state.PoolAddress)
	}

	afterFee, err := ApplyFeePpm(amountIn, int64(state.FeePpm))
	if err != nil {
		return nil, domain.ConcentratedLiquidityState{}, err
	}
	if afterFee.Sign() == 0 {
		return new(big.Int), state.Clone(), nil
	}

	sqrtP := state.SqrtPriceX96
	liquidity := state.Liquidity

	if zeroForOne {
		// sqrtQ = L·Q96·sqrtP / (L·Q96 + dx·sqrtP)
		lq := new(big.Int).Mul(liquidity, q96)
		num := new(big.Int).Mul(lq, sqrtP)
		den := new(big.Int).Mul(afterFee, sqrtP)
		den.Add(den, lq)
		if den.Sign() <= 0 {
			return nil, domain.ConcentratedLiquidityState{}, fmt.Errorf("%w: price denominator must be > 0, got %s",
				domain.ErrSimulationInvalid, den)
		}
		sqrtQ := num.Quo(num, den)
		if sqrtQ.Sign() <= 0 {
			return nil, domain.ConcentratedLiquidityState{}, fmt.Errorf("%w: new sqrtPriceX96 must be > 0, got %s",
				domain.ErrSimulationInvalid, sqrtQ)
		}

		// dy = L·(sqrtP − sqrtQ) / Q96
		out := new(big.Int).Sub(sqrtP, sqrtQ)
		out.Mul(out, liquidity)
		out.Quo(out, q96)
		return out, state.WithSqrtPrice(sqrtQ), nil
	}

	// sqrtQ = sqrtP + dy·Q96 / L
	step := new(big.Int).Mul(afterFee, q96)
	step.Quo(step, liquidity)
	sqrtQ := new(big.Int).Add(sqrtP, step)
	if sqrtQ.Cmp(sqrtP) <= 0 {
		return nil, domain.ConcentratedLiquidityState{}, fmt.Errorf("%w: sqrtPriceX96 must increase, stayed at %s (input %s too small for liquidity %s)",
			domain.ErrSimulationInvalid, sqrtP, afterFee, liquidity)
	}

	// dx = L·(sqrtQ − sqrtP)·Q96 / (sqrtQ·sqrtP)
	num := new(big.Int).Sub(sqrtQ, sqrtP)
	num.Mul(num, liquidity)
	num.Mul(num, q96)
	den := new(big.Int).Mul(sqrtQ, sqrtP)
	if den.Sign() <= 0 {
		return nil, domain.ConcentratedLiquidityState{}, fmt.Errorf("%w: output denominator must be > 0, got %s",
			domain.ErrSimulationInvalid, den)
	}
	out := num.Quo(num, den)
	return out, state.WithSqrtPrice(sqrtQ), nil
}
