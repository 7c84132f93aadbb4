package amm

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// SqrtPriceX96FromPrice returns floor(sqrt(price · 10^decimals1 · 2^192 /
// 10^decimals0)) for an integer token1-per-token0 price. It is the inverse of
// RatioFromConcentratedLiquidity up to truncation and is used to seed
// synthetic pools.
func SqrtPriceX96FromPrice(price int64, decimals0, decimals1 int) (*big.Int, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be > 0, got %d", domain.ErrInvalidParameter, price)
	}
	scale0, err := Pow10(decimals0)
	if err != nil {
		return nil, err
	}
	scale1, err := Pow10(decimals1)
	if err != nil {
		return nil, err
	}

	radicand := new(big.Int).Mul(big.NewInt(price), scale1)
	radicand.Mul(radicand, q192)
	radicand.Quo(radicand, scale0)
	return new(big.Int).Sqrt(radicand), nil
}
