package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

func TestSwapExactIn_Dispatch(t *testing.T) {
	cl := clState(t, Q96(), big.NewInt(1_000_000), 0)
	cp := cpState(big.NewInt(100_000_000), bigFromString("50000000000000000000"))

	out, next, err := SwapExactIn(cl, false, big.NewInt(1_000_000), Fees{})
	require.NoError(t, err)
	assert.Equal(t, "500000", out.String())
	nextCL, ok := next.(domain.ConcentratedLiquidityState)
	require.True(t, ok)
	assert.Equal(t, "158456325028528675187087900672", nextCL.SqrtPriceX96.String())

	out, next, err = SwapExactIn(cp, true, big.NewInt(1_000_000), Fees{ConstantProductBps: 30})
	require.NoError(t, err)
	assert.Equal(t, "493579017198530649", out.String())
	_, ok = next.(domain.ConstantProductState)
	assert.True(t, ok)
}

func TestSwapExactIn_PropagatesErrors(t *testing.T) {
	cp := cpState(big.NewInt(0), big.NewInt(1000))
	_, next, err := SwapExactIn(cp, true, big.NewInt(10), Fees{ConstantProductBps: 30})
	assert.ErrorIs(t, err, domain.ErrSimulationInvalid)
	assert.Nil(t, next)
}

func TestPrice(t *testing.T) {
	cp := cpState(bigFromString("1000000000000000000000"), big.NewInt(3_100_000_000_000))
	r, err := Price(cp, 18, 6)
	require.NoError(t, err)
	assert.Equal(t, "3100.00", Display(r, 2))

	cl := deepPool(t)
	r, err = Price(cl, 18, 6)
	require.NoError(t, err)
	assert.Equal(t, "2899.99", Display(r, 2))
}
