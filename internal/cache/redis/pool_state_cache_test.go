package redis

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

func TestPoolStateKey(t *testing.T) {
	assert.Equal(t,
		"poolstate:arb:univ3:0xc31e54c7a869b9fcbecc14363cf510d1c41fa443",
		poolStateKey(domain.ChainArbitrum, domain.VenueUniV3, "0xC31E54c7a869B9FcBEcc14363CF510d1c41fa443"))
	assert.Equal(t, "head:arb:last_block", headKey(domain.ChainArbitrum))
	assert.Equal(t, "lock:scan:arb", lockKey("scan:arb"))
}

func TestEncodeDecodePoolState_Concentrated(t *testing.T) {
	sqrtP, ok := new(big.Int).SetString("4266567125057494535506749", 10)
	require.True(t, ok)
	liquidity, ok := new(big.Int).SetString("1000000000000000000000000", 10)
	require.True(t, ok)

	state, err := domain.NewConcentratedLiquidityState(domain.ChainArbitrum, domain.VenueUniV3,
		"0xC31E54c7a869B9FcBEcc14363CF510d1c41fa443", sqrtP, -197_000, liquidity, 500, 123)
	require.NoError(t, err)

	data, err := encodePoolState(state, time.Unix(1_700_000_000, 0).UTC())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sqrtPriceX96":"4266567125057494535506749"`)
	assert.Contains(t, string(data), `"liquidity":"1000000000000000000000000"`)

	decoded, err := decodePoolState(data)
	require.NoError(t, err)
	cl, ok := decoded.(domain.ConcentratedLiquidityState)
	require.True(t, ok)
	assert.Equal(t, "0xc31e54c7a869b9fcbecc14363cf510d1c41fa443", cl.PoolAddress)
	assert.Equal(t, 0, cl.SqrtPriceX96.Cmp(sqrtP))
	assert.Equal(t, 0, cl.Liquidity.Cmp(liquidity))
	assert.Equal(t, int32(-197_000), cl.Tick)
	assert.Equal(t, uint32(500), cl.FeePpm)
	assert.Equal(t, uint64(123), cl.BlockNumber)
}

func TestEncodeDecodePoolState_ConstantProduct(t *testing.T) {
	r0, _ := new(big.Int).SetString("1000000000000000000000", 10)
	state, err := domain.NewConstantProductState(domain.ChainArbitrum, domain.VenueSushiV2,
		"0x905dfcd5649217c42684f23958568e533c711aa3", r0, big.NewInt(3_100_000_000_000), 77)
	require.NoError(t, err)

	data, err := encodePoolState(state, time.Now())
	require.NoError(t, err)

	decoded, err := decodePoolState(data)
	require.NoError(t, err)
	cp, ok := decoded.(domain.ConstantProductState)
	require.True(t, ok)
	assert.Equal(t, "1000000000000000000000", cp.Reserve0.String())
	assert.Equal(t, "3100000000000", cp.Reserve1.String())
	assert.Equal(t, uint64(77), cp.BlockNumber)
}

func TestDecodePoolState_Malformed(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{{`},
		{name: "unknown kind", data: `{"kind":"stable","pool_address":"0x1"}`},
		{name: "reserve not a number", data: `{"kind":"constant_product","pool_address":"0x1","reserve0":"abc","reserve1":"1"}`},
		{name: "zero reserve", data: `{"kind":"constant_product","pool_address":"0x1","reserve0":"0","reserve1":"1"}`},
		{name: "zero liquidity", data: `{"kind":"concentrated","pool_address":"0x1","sqrtPriceX96":"1","liquidity":"0"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodePoolState([]byte(tc.data))
			assert.ErrorIs(t, err, domain.ErrStaleOrInvalidState)
		})
	}
}

func TestEncodePoolState_RejectsInvalid(t *testing.T) {
	_, err := encodePoolState(domain.ConstantProductState{PoolAddress: "0x1", Reserve0: big.NewInt(0), Reserve1: big.NewInt(1)}, time.Now())
	assert.ErrorIs(t, err, domain.ErrStaleOrInvalidState)
}
