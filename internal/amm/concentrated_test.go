package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

func clState(t *testing.T, sqrtP, liquidity *big.Int, feePpm uint32) domain.ConcentratedLiquidityState {
	t.Helper()
	return domain.ConcentratedLiquidityState{
		Chain:        domain.ChainArbitrum,
		Venue:        domain.VenueUniV3,
		PoolAddress:  "0xc6962004f452be9203591991d15f6b388e09e8d0",
		SqrtPriceX96: sqrtP,
		Liquidity:    liquidity,
		FeePpm:       feePpm,
		BlockNumber:  100,
	}
}

func deepPool(t *testing.T) domain.ConcentratedLiquidityState {
	t.Helper()
	sqrtP, err := SqrtPriceX96FromPrice(2900, 18, 6)
	require.NoError(t, err)
	return clState(t, sqrtP, bigFromString("1000000000000000000000000"), 500)
}

func TestSimulateConcentratedExactIn_ZeroForOne(t *testing.T) {
	state := deepPool(t)
	before := new(big.Int).Set(state.SqrtPriceX96)

	out, next, err := SimulateConcentratedExactIn(state, true, bigFromString("1000000000000000000"))
	require.NoError(t, err)

	assert.Equal(t, "2898549999", out.String())
	assert.Equal(t, "4266567124827847745063388", next.SqrtPriceX96.String())
	assert.Equal(t, -1, next.SqrtPriceX96.Cmp(state.SqrtPriceX96), "selling token0 moves the price down")

	assert.Equal(t, 0, state.SqrtPriceX96.Cmp(before), "input state must not change")
	assert.Equal(t, state.Liquidity.String(), next.Liquidity.String())
	assert.Equal(t, state.FeePpm, next.FeePpm)
	assert.Equal(t, state.Tick, next.Tick)
	assert.Equal(t, state.BlockNumber, next.BlockNumber)
	assert.Equal(t, state.PoolAddress, next.PoolAddress)
}

func TestSimulateConcentratedExactIn_OneForZero(t *testing.T) {
	state := deepPool(t)

	out, next, err := SimulateConcentratedExactIn(state, false, big.NewInt(2_900_000_000))
	require.NoError(t, err)

	assert.Equal(t, "999499999946198291", out.String())
	assert.Equal(t, "4266567125287141325962469", next.SqrtPriceX96.String())
	assert.Equal(t, 1, next.SqrtPriceX96.Cmp(state.SqrtPriceX96), "selling token1 moves the price up")
}

func TestSimulateConcentratedExactIn_UnitPrice(t *testing.T) {
	state := clState(t, Q96(), big.NewInt(1_000_000), 0)

	out, next, err := SimulateConcentratedExactIn(state, false, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, "500000", out.String())
	assert.Equal(t, "158456325028528675187087900672", next.SqrtPriceX96.String())
}

func TestSimulateConcentratedExactIn_TinyLiquidityMovesPriceWithoutOutput(t *testing.T) {
	state := clState(t, Q96(), big.NewInt(1), 500)

	out, next, err := SimulateConcentratedExactIn(state, true, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Sign())
	assert.Equal(t, "7922816251426433759354395033", next.SqrtPriceX96.String())
}

func TestSimulateConcentratedExactIn_ZeroAfterFee(t *testing.T) {
	state := deepPool(t)

	for _, amount := range []*big.Int{big.NewInt(0), big.NewInt(1)} {
		out, next, err := SimulateConcentratedExactIn(state, true, amount)
		require.NoError(t, err)
		assert.Equal(t, 0, out.Sign())
		assert.Equal(t, 0, next.SqrtPriceX96.Cmp(state.SqrtPriceX96))
		assert.NotSame(t, state.SqrtPriceX96, next.SqrtPriceX96, "returned state is a copy")
	}
}

func TestSimulateConcentratedExactIn_Errors(t *testing.T) {
	testCases := []struct {
		name       string
		state      domain.ConcentratedLiquidityState
		zeroForOne bool
		amountIn   *big.Int
		wantErr    error
	}{
		{
			name:     "negative input",
			state:    clState(t, Q96(), big.NewInt(1_000_000), 500),
			amountIn: big.NewInt(-1),
			wantErr:  domain.ErrInvalidParameter,
		},
		{
			name:     "nil input",
			state:    clState(t, Q96(), big.NewInt(1_000_000), 500),
			amountIn: nil,
			wantErr:  domain.ErrInvalidParameter,
		},
		{
			name:     "fee above one million ppm",
			state:    clState(t, Q96(), big.NewInt(1_000_000), 1_000_001),
			amountIn: big.NewInt(1000),
			wantErr:  domain.ErrInvalidParameter,
		},
		{
			name:     "zero liquidity",
			state:    clState(t, Q96(), big.NewInt(0), 500),
			amountIn: big.NewInt(1000),
			wantErr:  domain.ErrSimulationInvalid,
		},
		{
			name:     "zero sqrt price",
			state:    clState(t, big.NewInt(0), big.NewInt(1_000_000), 500),
			amountIn: big.NewInt(1000),
			wantErr:  domain.ErrSimulationInvalid,
		},
		{
			name:     "price does not move",
			state:    clState(t, Q96(), new(big.Int).Lsh(big.NewInt(1), 100), 0),
			amountIn: big.NewInt(10),
			wantErr:  domain.ErrSimulationInvalid,
		},
		{
			name:       "negative input is checked before state",
			state:      clState(t, Q96(), big.NewInt(0), 500),
			zeroForOne: true,
			amountIn:   big.NewInt(-5),
			wantErr:    domain.ErrInvalidParameter,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, _, err := SimulateConcentratedExactIn(tc.state, tc.zeroForOne, tc.amountIn)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, out)
		})
	}
}

func TestSimulateConcentratedExactIn_OutputGrowsWithInput(t *testing.T) {
	state := deepPool(t)

	prev := big.NewInt(0)
	for _, usdc := range []int64{1_000_000, 10_000_000, 100_000_000, 1_000_000_000, 10_000_000_000} {
		out, _, err := SimulateConcentratedExactIn(state, false, big.NewInt(usdc))
		require.NoError(t, err)
		assert.Equal(t, 1, out.Cmp(prev), "amount %d", usdc)
		prev = out
	}
}
