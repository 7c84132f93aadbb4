// Package arbitrage detects fee-adjusted round-trip edges between a
// concentrated-liquidity pool and a constant-product pair quoting the same
// token pair.
package arbitrage

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/atomicnexus/internal/amm"
	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

var (
	bpsUnit     = big.NewInt(domain.MaxFeeBps)
	ppmUnit     = big.NewInt(domain.MaxFeePpm)
	ppmUnitSqrd = new(big.Int).Mul(ppmUnit, ppmUnit)
)

// EdgeBpsAfterFees returns the edge, in bps, of buying token0 at buy and
// selling it at sell after both venues' fees:
//
//	floor(sell.Num·buy.Den·(1e6−buyFee)·(1e6−sellFee)·1e4 / (sell.Den·buy.Num·1e12)) − 1e4
//
// A negative result means the round trip loses money.
func EdgeBpsAfterFees(sell, buy amm.Ratio, sellFeePpm, buyFeePpm int64) (int64, error) {
	if err := amm.ValidateFeePpm(sellFeePpm); err != nil {
		return 0, fmt.Errorf("sell fee: %w", err)
	}
	if err := amm.ValidateFeePpm(buyFeePpm); err != nil {
		return 0, fmt.Errorf("buy fee: %w", err)
	}
	if isZero(sell.Den) || isZero(buy.Den) {
		return 0, fmt.Errorf("%w: price denominator is zero", domain.ErrStaleOrInvalidState)
	}
	if isZero(buy.Num) {
		return 0, fmt.Errorf("%w: buy price is zero", domain.ErrStaleOrInvalidState)
	}
	if sell.Num == nil {
		return 0, fmt.Errorf("%w: sell price is missing", domain.ErrStaleOrInvalidState)
	}

	feeMul := new(big.Int).Mul(big.NewInt(domain.MaxFeePpm-buyFeePpm), big.NewInt(domain.MaxFeePpm-sellFeePpm))

	num := new(big.Int).Mul(sell.Num, buy.Den)
	num.Mul(num, feeMul)
	num.Mul(num, bpsUnit)

	den := new(big.Int).Mul(sell.Den, buy.Num)
	den.Mul(den, ppmUnitSqrd)

	factor := num.Quo(num, den)
	factor.Sub(factor, bpsUnit)
	if !factor.IsInt64() {
		return 0, fmt.Errorf("%w: edge %s bps out of range", domain.ErrStaleOrInvalidState, factor)
	}
	return factor.Int64(), nil
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}
