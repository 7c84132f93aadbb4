package amm

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// SimulateConstantProductExactIn swaps amountIn through an x·y=k pair with the
// fee taken on the input side. zeroForOne sells token0 for token1.
//
// The returned state credits the full pre-fee input to the input reserve and
// debits the output from the other one. A zero post-fee input returns zero
// and an unchanged copy of state.
func SimulateConstantProductExactIn(state domain.ConstantProductState, zeroForOne bool, amountIn *big.Int, feeBps int64) (*big.Int, domain.ConstantProductState, error) {
	if err := validateAmountIn(amountIn); err != nil {
		return nil, domain.ConstantProductState{}, err
	}
	if err := ValidateFeeBps(feeBps); err != nil {
		return nil, domain.ConstantProductState{}, err
	}
	if state.Reserve0 == nil || state.Reserve0.Sign() <= 0 {
		return nil, domain.ConstantProductState{}, fmt.Errorf("%w: reserve0 must be > 0, got %s (pool %s)",
			domain.ErrSimulationInvalid, amountString(state.Reserve0), state.PoolAddress)
	}
	if state.Reserve1 == nil || state.Reserve1.Sign() <= 0 {
		return nil, domain.ConstantProductState{}, fmt.Errorf("%w: reserve1 must be > 0, got %s (pool %s)",
			domain.ErrSimulationInvalid, amountString(state.Reserve1), state.PoolAddress)
	}

	afterFee, err := ApplyFeeBps(amountIn, feeBps)
	if err != nil {
		return nil, domain.ConstantProductState{}, err
	}
	if afterFee.Sign() == 0 {
		return new(big.Int), state.Clone(), nil
	}

	reserveIn, reserveOut := state.Reserve1, state.Reserve0
	if zeroForOne {
		reserveIn, reserveOut = state.Reserve0, state.Reserve1
	}

	// out = in·(1e4−fee)·rOut / (rIn·1e4 + in·(1e4−fee))
	inNumer := new(big.Int).Mul(amountIn, big.NewInt(domain.MaxFeeBps-feeBps))
	num := new(big.Int).Mul(inNumer, reserveOut)
	den := new(big.Int).Mul(reserveIn, tenThousand)
	den.Add(den, inNumer)
	if den.Sign() <= 0 {
		return nil, domain.ConstantProductState{}, fmt.Errorf("%w: denominator must be > 0, got %s",
			domain.ErrSimulationInvalid, den)
	}
	out := num.Quo(num, den)

	if out.Sign() <= 0 {
		return nil, domain.ConstantProductState{}, fmt.Errorf("%w: output must be > 0 for input %s (pool %s)",
			domain.ErrSimulationInvalid, amountIn, state.PoolAddress)
	}
	if out.Cmp(reserveOut) >= 0 {
		return nil, domain.ConstantProductState{}, fmt.Errorf("%w: output %s would drain reserve %s (pool %s)",
			domain.ErrSimulationInvalid, out, reserveOut, state.PoolAddress)
	}

	newIn := new(big.Int).Add(reserveIn, amountIn)
	newOut := new(big.Int).Sub(reserveOut, out)

	next := state.Clone()
	if zeroForOne {
		next.Reserve0, next.Reserve1 = newIn, newOut
	} else {
		next.Reserve0, next.Reserve1 = newOut, newIn
	}
	return out, next, nil
}
