package optimizer

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// DefaultIterations is the ternary-search budget used when none is given.
const DefaultIterations = 80

// maxScanWidth bounds the final linear scan. An interval still wider than
// this after the iteration budget means the budget was too small for the
// bounds.
var maxScanWidth = big.NewInt(1 << 16)

// Objective maps a trade size to a value to maximize.
type Objective func(x *big.Int) (*big.Int, error)

// TernarySearchMax returns the x in [lo, hi] that maximizes f, and f(x).
//
// f is assumed unimodal over the interval: non-decreasing up to a single
// peak (or plateau) and non-increasing after it. Round trips across two AMM
// curves satisfy this because each curve's marginal price impact is
// monotone in size. The assumption is not checked; on a multi-peaked f the
// result is a local maximum.
//
// Each step cuts the interval into thirds and drops the third beside the
// lower interior sample, until the width is at most 3 or iterations run
// out. The survivors are then scanned and the first strict maximum wins.
// iterations == 0 selects DefaultIterations.
//
// If the budget runs out while the interval is still wider than 65 536, the scan
// is refused and ErrSearchFailed is returned; raise iterations or narrow the
// bounds.
func TernarySearchMax(lo, hi *big.Int, iterations int, f Objective) (*big.Int, *big.Int, error) {
	if lo == nil || hi == nil {
		return nil, nil, fmt.Errorf("%w: search bounds are required", domain.ErrSearchFailed)
	}
	if lo.Sign() < 0 || hi.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: search bounds must be >= 0, got [%s, %s]", domain.ErrSearchFailed, lo, hi)
	}
	if lo.Cmp(hi) > 0 {
		return nil, nil, fmt.Errorf("%w: lower bound %s exceeds upper bound %s", domain.ErrSearchFailed, lo, hi)
	}
	if iterations < 0 {
		return nil, nil, fmt.Errorf("%w: iterations must be >= 0, got %d", domain.ErrSearchFailed, iterations)
	}
	if iterations == 0 {
		iterations = DefaultIterations
	}

	left := new(big.Int).Set(lo)
	right := new(big.Int).Set(hi)
	three := big.NewInt(3)
	one := big.NewInt(1)
	span := new(big.Int)

	for range iterations {
		span.Sub(right, left)
		if span.Cmp(three) <= 0 {
			break
		}
		third := new(big.Int).Quo(span, three)
		m1 := new(big.Int).Add(left, third)
		m2 := new(big.Int).Sub(right, third)

		v1, err := f(m1)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate %s: %w", m1, err)
		}
		v2, err := f(m2)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate %s: %w", m2, err)
		}

		if v1.Cmp(v2) < 0 {
			left = m1.Add(m1, one)
		} else {
			right = m2.Sub(m2, one)
		}
	}

	if right.Cmp(left) < 0 {
		return nil, nil, fmt.Errorf("%w: interval collapsed to [%s, %s]", domain.ErrSearchFailed, left, right)
	}
	if span.Sub(right, left).Cmp(maxScanWidth) > 0 {
		return nil, nil, fmt.Errorf("%w: %d iterations left an interval of width %s", domain.ErrSearchFailed, iterations, span)
	}

	bestX := new(big.Int).Set(left)
	bestV, err := f(new(big.Int).Set(bestX))
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate %s: %w", bestX, err)
	}
	for x := new(big.Int).Add(left, one); x.Cmp(right) <= 0; x.Add(x, one) {
		v, err := f(new(big.Int).Set(x))
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate %s: %w", x, err)
		}
		if v.Cmp(bestV) > 0 {
			bestV = v
			bestX.Set(x)
		}
	}
	return bestX, bestV, nil
}
