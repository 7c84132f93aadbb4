package amm

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// Fees carries the per-venue fee parameters that are not part of a pool's
// state. Concentrated-liquidity pools carry their own ppm fee.
type Fees struct {
	ConstantProductBps int64
}

// SwapExactIn dispatches an exact-in swap to the simulator for state's curve.
func SwapExactIn(state domain.PoolState, zeroForOne bool, amountIn *big.Int, fees Fees) (*big.Int, domain.PoolState, error) {
	switch s := state.(type) {
	case domain.ConcentratedLiquidityState:
		out, next, err := SimulateConcentratedExactIn(s, zeroForOne, amountIn)
		if err != nil {
			return nil, nil, err
		}
		return out, next, nil
	case domain.ConstantProductState:
		out, next, err := SimulateConstantProductExactIn(s, zeroForOne, amountIn, fees.ConstantProductBps)
		if err != nil {
			return nil, nil, err
		}
		return out, next, nil
	default:
		return nil, nil, fmt.Errorf("%w: unsupported pool state %T", domain.ErrInvalidParameter, state)
	}
}

// Price returns the token1-per-token0 price of state.
func Price(state domain.PoolState, decimals0, decimals1 int) (Ratio, error) {
	switch s := state.(type) {
	case domain.ConcentratedLiquidityState:
		return RatioFromConcentratedLiquidity(s.SqrtPriceX96, decimals0, decimals1)
	case domain.ConstantProductState:
		return RatioFromConstantProduct(s.Reserve0, s.Reserve1, decimals0, decimals1)
	default:
		return Ratio{}, fmt.Errorf("%w: unsupported pool state %T", domain.ErrInvalidParameter, state)
	}
}
