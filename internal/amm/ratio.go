// Package amm holds the exact-integer pricing and swap simulation for the two
// supported pool curves. Every function is pure: inputs are never mutated and
// results share no memory with them.
package amm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

var (
	ten = big.NewInt(10)

	q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	q192 = new(big.Int).Lsh(big.NewInt(1), 192)

	// precomputed 10^n for common ERC20 decimals (0..18)
	precomputedScales [19]*big.Int
)

func init() {
	precomputedScales[0] = big.NewInt(1)
	for i := 1; i < len(precomputedScales); i++ {
		precomputedScales[i] = new(big.Int).Mul(precomputedScales[i-1], ten)
	}
}

// Q96 returns 2^96.
func Q96() *big.Int { return new(big.Int).Set(q96) }

// Q192 returns 2^192.
func Q192() *big.Int { return new(big.Int).Set(q192) }

// Pow10 returns a fresh 10^n. Negative n is ErrInvalidParameter.
func Pow10(n int) (*big.Int, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: decimals must be >= 0, got %d", domain.ErrInvalidParameter, n)
	}
	if n < len(precomputedScales) {
		return new(big.Int).Set(precomputedScales[n]), nil
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil), nil
}

// Ratio is an exact price Num/Den. It is never reduced, so two ratios are
// equal only after cross multiplication.
type Ratio struct {
	Num *big.Int
	Den *big.Int
}

// Cmp compares r and o by cross multiplication. Both denominators must be
// positive.
func (r Ratio) Cmp(o Ratio) int {
	left := new(big.Int).Mul(r.Num, o.Den)
	right := new(big.Int).Mul(o.Num, r.Den)
	return left.Cmp(right)
}

// RatioFromConcentratedLiquidity converts a Q64.96 square-root price into
// token B per token A: sqrtP² · 10^decimalsA / (2^192 · 10^decimalsB).
func RatioFromConcentratedLiquidity(sqrtPriceX96 *big.Int, decimalsA, decimalsB int) (Ratio, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() < 0 {
		return Ratio{}, fmt.Errorf("%w: sqrtPriceX96 must be non-negative", domain.ErrInvalidParameter)
	}
	scaleA, err := Pow10(decimalsA)
	if err != nil {
		return Ratio{}, err
	}
	scaleB, err := Pow10(decimalsB)
	if err != nil {
		return Ratio{}, err
	}

	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num.Mul(num, scaleA)
	den := new(big.Int).Mul(q192, scaleB)
	return Ratio{Num: num, Den: den}, nil
}

// RatioFromConstantProduct prices token B per token A from reserves:
// reserveB · 10^decimalsA / (reserveA · 10^decimalsB).
func RatioFromConstantProduct(reserveA, reserveB *big.Int, decimalsA, decimalsB int) (Ratio, error) {
	if reserveA == nil || reserveB == nil || reserveA.Sign() < 0 || reserveB.Sign() < 0 {
		return Ratio{}, fmt.Errorf("%w: reserves must be non-negative", domain.ErrInvalidParameter)
	}
	scaleA, err := Pow10(decimalsA)
	if err != nil {
		return Ratio{}, err
	}
	scaleB, err := Pow10(decimalsB)
	if err != nil {
		return Ratio{}, err
	}

	num := new(big.Int).Mul(reserveB, scaleA)
	den := new(big.Int).Mul(reserveA, scaleB)
	return Ratio{Num: num, Den: den}, nil
}

// FormatRatio renders r with exactly fractionDigits digits after the point,
// truncating toward zero. With zero digits only the integer part is printed.
func FormatRatio(r Ratio, fractionDigits int) (string, error) {
	if fractionDigits < 0 {
		return "", fmt.Errorf("%w: fractionDigits must be >= 0, got %d", domain.ErrInvalidParameter, fractionDigits)
	}
	if r.Den == nil || r.Den.Sign() == 0 {
		return "", fmt.Errorf("%w: ratio denominator is zero", domain.ErrDivisionByZero)
	}
	if r.Num == nil {
		return "", fmt.Errorf("%w: ratio numerator is nil", domain.ErrInvalidParameter)
	}

	scale, err := Pow10(fractionDigits)
	if err != nil {
		return "", err
	}
	scaled := new(big.Int).Mul(r.Num, scale)
	scaled.Quo(scaled, r.Den)

	sign := ""
	if scaled.Sign() < 0 {
		sign = "-"
		scaled.Neg(scaled)
	}
	digits := scaled.String()
	if fractionDigits == 0 {
		return sign + digits, nil
	}
	if len(digits) <= fractionDigits {
		digits = strings.Repeat("0", fractionDigits-len(digits)+1) + digits
	}
	cut := len(digits) - fractionDigits
	return sign + digits[:cut] + "." + digits[cut:], nil
}

// Display is FormatRatio for log lines; failures render as "invalid".
func Display(r Ratio, fractionDigits int) string {
	s, err := FormatRatio(r, fractionDigits)
	if err != nil {
		return "invalid"
	}
	return s
}
