package optimizer

import (
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/alanyoungcy/atomicnexus/internal/amm"
	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// RoundTrip simulates a candidate's two legs, token1 -> token0 on the first
// venue and token0 -> token1 on the second, against fixed pool states.
type RoundTrip struct {
	legs [2]domain.PoolState
	fees amm.Fees
}

// NewRoundTrip checks that c is a token1 -> token0 -> token1 round trip over
// exactly the two supplied pools and binds its legs to them.
func NewRoundTrip(c domain.Candidate, token0, token1 string, cl domain.ConcentratedLiquidityState, cp domain.ConstantProductState, fees amm.Fees) (*RoundTrip, error) {
	if len(c.TokenPath) != 3 || len(c.VenuePath) != 2 || len(c.PoolPath) != 2 {
		return nil, fmt.Errorf("%w: want 3 tokens, 2 venues and 2 pools, got %d/%d/%d",
			domain.ErrInvalidCandidate, len(c.TokenPath), len(c.VenuePath), len(c.PoolPath))
	}

	token0, token1 = strings.ToLower(token0), strings.ToLower(token1)
	path := []string{strings.ToLower(c.TokenPath[0]), strings.ToLower(c.TokenPath[1]), strings.ToLower(c.TokenPath[2])}
	if !slices.Equal(path, []string{token1, token0, token1}) {
		return nil, fmt.Errorf("%w: token path %v is not [%s %s %s]",
			domain.ErrInvalidCandidate, c.TokenPath, token1, token0, token1)
	}
	if c.VenuePath[0] == c.VenuePath[1] {
		return nil, fmt.Errorf("%w: both legs use venue %s", domain.ErrInvalidCandidate, c.VenuePath[0])
	}

	rt := &RoundTrip{fees: fees}
	for i, venue := range c.VenuePath {
		pool := strings.ToLower(c.PoolPath[i])
		switch venue {
		case domain.VenueUniV3:
			if pool != strings.ToLower(cl.PoolAddress) {
				return nil, fmt.Errorf("%w: leg %d pool %s does not match %s pool %s",
					domain.ErrInvalidCandidate, i, pool, venue, cl.PoolAddress)
			}
			rt.legs[i] = cl
		case domain.VenueSushiV2:
			if pool != strings.ToLower(cp.PoolAddress) {
				return nil, fmt.Errorf("%w: leg %d pool %s does not match %s pool %s",
					domain.ErrInvalidCandidate, i, pool, venue, cp.PoolAddress)
			}
			rt.legs[i] = cp
		default:
			return nil, fmt.Errorf("%w: leg %d has unsupported venue %q", domain.ErrInvalidCandidate, i, venue)
		}
	}
	return rt, nil
}

// Simulate runs both legs for amountIn of token1 and returns the token1
// received. Every call starts from the bound states.
func (r *RoundTrip) Simulate(amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: round trip input must be > 0, got %v", domain.ErrSimulationInvalid, amountIn)
	}
	mid, _, err := amm.SwapExactIn(r.legs[0], false, amountIn, r.fees)
	if err != nil {
		return nil, fmt.Errorf("leg 0 on %s: %w", r.legs[0].VenueID(), err)
	}
	out, _, err := amm.SwapExactIn(r.legs[1], true, mid, r.fees)
	if err != nil {
		return nil, fmt.Errorf("leg 1 on %s: %w", r.legs[1].VenueID(), err)
	}
	return out, nil
}

// Profit returns Simulate(amountIn) − amountIn.
func (r *RoundTrip) Profit(amountIn *big.Int) (*big.Int, error) {
	out, err := r.Simulate(amountIn)
	if err != nil {
		return nil, err
	}
	return out.Sub(out, amountIn), nil
}
