package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

func cpState(reserve0, reserve1 *big.Int) domain.ConstantProductState {
	return domain.ConstantProductState{
		Chain:       domain.ChainArbitrum,
		Venue:       domain.VenueSushiV2,
		PoolAddress: "0x905dfcd5649217c42684f23958568e533c711aa3",
		Reserve0:    reserve0,
		Reserve1:    reserve1,
		BlockNumber: 100,
	}
}

func TestSimulateConstantProductExactIn(t *testing.T) {
	state := cpState(big.NewInt(100_000_000), bigFromString("50000000000000000000"))

	t.Run("token0 in", func(t *testing.T) {
		out, next, err := SimulateConstantProductExactIn(state, true, big.NewInt(1_000_000), 30)
		require.NoError(t, err)
		assert.Equal(t, "493579017198530649", out.String())
		assert.Equal(t, "101000000", next.Reserve0.String())
		assert.Equal(t, new(big.Int).Sub(state.Reserve1, out).String(), next.Reserve1.String())
	})

	t.Run("token1 in", func(t *testing.T) {
		out, next, err := SimulateConstantProductExactIn(state, false, bigFromString("1000000000000000000"), 30)
		require.NoError(t, err)
		assert.Equal(t, "1955016", out.String())
		assert.Equal(t, "51000000000000000000", next.Reserve1.String())
		assert.Equal(t, new(big.Int).Sub(state.Reserve0, out).String(), next.Reserve0.String())
	})

	t.Run("input state is untouched", func(t *testing.T) {
		_, _, err := SimulateConstantProductExactIn(state, true, big.NewInt(1_000_000), 30)
		require.NoError(t, err)
		assert.Equal(t, "100000000", state.Reserve0.String())
		assert.Equal(t, "50000000000000000000", state.Reserve1.String())
	})
}

func TestSimulateConstantProductExactIn_Invariants(t *testing.T) {
	state := cpState(bigFromString("1000000000000000000000"), big.NewInt(3_100_000_000_000))
	k := new(big.Int).Mul(state.Reserve0, state.Reserve1)

	amounts := []*big.Int{
		big.NewInt(1_000_000),
		big.NewInt(1_000_000_000),
		big.NewInt(500_000_000_000),
	}
	for _, amount := range amounts {
		out, next, err := SimulateConstantProductExactIn(state, false, amount, 30)
		require.NoError(t, err)

		assert.Equal(t, 1, out.Sign())
		assert.Equal(t, -1, out.Cmp(state.Reserve0))
		nextK := new(big.Int).Mul(next.Reserve0, next.Reserve1)
		assert.GreaterOrEqual(t, nextK.Cmp(k), 0, "k must not shrink for input %s", amount)
	}
}

func TestSimulateConstantProductExactIn_ZeroAfterFee(t *testing.T) {
	state := cpState(big.NewInt(1000), big.NewInt(1000))

	out, next, err := SimulateConstantProductExactIn(state, true, big.NewInt(1), 30)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Sign())
	assert.Equal(t, "1000", next.Reserve0.String())
	assert.Equal(t, "1000", next.Reserve1.String())
}

func TestSimulateConstantProductExactIn_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		state    domain.ConstantProductState
		amountIn *big.Int
		feeBps   int64
		wantErr  error
	}{
		{name: "negative input", state: cpState(big.NewInt(1000), big.NewInt(1000)), amountIn: big.NewInt(-1), feeBps: 30, wantErr: domain.ErrInvalidParameter},
		{name: "fee above ten thousand bps", state: cpState(big.NewInt(1000), big.NewInt(1000)), amountIn: big.NewInt(10), feeBps: 10_001, wantErr: domain.ErrInvalidParameter},
		{name: "negative fee", state: cpState(big.NewInt(1000), big.NewInt(1000)), amountIn: big.NewInt(10), feeBps: -1, wantErr: domain.ErrInvalidParameter},
		{name: "zero reserve0", state: cpState(big.NewInt(0), big.NewInt(1000)), amountIn: big.NewInt(10), feeBps: 30, wantErr: domain.ErrSimulationInvalid},
		{name: "zero reserve1", state: cpState(big.NewInt(1000), big.NewInt(0)), amountIn: big.NewInt(10), feeBps: 30, wantErr: domain.ErrSimulationInvalid},
		{name: "output rounds to zero", state: cpState(big.NewInt(1000), big.NewInt(1000)), amountIn: big.NewInt(1), feeBps: 0, wantErr: domain.ErrSimulationInvalid},
		{name: "fee is checked before reserves", state: cpState(big.NewInt(0), big.NewInt(0)), amountIn: big.NewInt(10), feeBps: 20_000, wantErr: domain.ErrInvalidParameter},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, _, err := SimulateConstantProductExactIn(tc.state, true, tc.amountIn, tc.feeBps)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, out)
		})
	}
}
