package arbitrage

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/atomicnexus/internal/amm"
	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

const (
	testWETH  = "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"
	testUSDC  = "0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8"
	testUni   = "0xC31E54c7a869B9FcBEcc14363CF510d1c41fa443"
	testSushi = "0x905dfcd5649217c42684f23958568e533c711aa3"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestDetector(t *testing.T, minEdgeBps int64) *Detector {
	t.Helper()
	d, err := NewDetector(DetectorConfig{
		Chain:                 domain.ChainArbitrum,
		Token0:                testWETH,
		Token1:                testUSDC,
		Token0Decimals:        18,
		Token1Decimals:        6,
		ConstantProductFeeBps: 30,
		MinEdgeBps:            minEdgeBps,
		NotionalUSD:           10_000,
	})
	require.NoError(t, err)
	d.now = func() time.Time { return fixedNow }
	d.newID = func() string { return "trace-1" }
	return d
}

func uniState(feePpm uint32, block uint64) domain.ConcentratedLiquidityState {
	return domain.ConcentratedLiquidityState{
		Chain:        domain.ChainArbitrum,
		Venue:        domain.VenueUniV3,
		PoolAddress:  testUni,
		SqrtPriceX96: amm.Q96(),
		Liquidity:    big.NewInt(1),
		FeePpm:       feePpm,
		BlockNumber:  block,
	}
}

func sushiState(reserve0, reserve1 int64, block uint64) domain.ConstantProductState {
	return domain.ConstantProductState{
		Chain:       domain.ChainArbitrum,
		Venue:       domain.VenueSushiV2,
		PoolAddress: testSushi,
		Reserve0:    big.NewInt(reserve0),
		Reserve1:    big.NewInt(reserve1),
		BlockNumber: block,
	}
}

func TestDetect_UniToSushi(t *testing.T) {
	d := newTestDetector(t, 25)

	c, err := d.Detect(uniState(500, 10), sushiState(1000, 1020, 12), 0)
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, "trace-1", c.ID)
	assert.Equal(t, domain.ChainArbitrum, c.Chain)
	assert.Equal(t, domain.DirectionUniToSushi, c.Direction)
	assert.Equal(t, int64(164), c.RoughEdgeBps)
	assert.InDelta(t, 164.0, c.RoughProfitUSD, 1e-9)
	assert.Equal(t, []domain.Venue{domain.VenueUniV3, domain.VenueSushiV2}, c.VenuePath)
	assert.Equal(t, []string{
		"0xc31e54c7a869b9fcbecc14363cf510d1c41fa443",
		"0x905dfcd5649217c42684f23958568e533c711aa3",
	}, c.PoolPath)
	assert.Equal(t, []string{
		"0xff970a61a04b1ca14834a43f5de4533ebddb5cc8",
		"0x82af49447d8a07e3bd95bd0d56f35241523fbab1",
		"0xff970a61a04b1ca14834a43f5de4533ebddb5cc8",
	}, c.TokenPath)
	assert.Equal(t, c.TokenPath[0], c.TokenIn)
	assert.Equal(t, c.TokenPath[0], c.TokenOut)
	assert.Equal(t, uint64(10), c.SnapshotBlock, "lower of the two heights")
	assert.Equal(t, fixedNow, c.CreatedAt)
}

func TestDetect_SushiToUni(t *testing.T) {
	d := newTestDetector(t, 25)

	c, err := d.Detect(uniState(500, 10), sushiState(1000, 980, 10), 77)
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, domain.DirectionSushiToUni, c.Direction)
	assert.Equal(t, int64(168), c.RoughEdgeBps)
	assert.Equal(t, []domain.Venue{domain.VenueSushiV2, domain.VenueUniV3}, c.VenuePath)
	assert.Equal(t, "0x905dfcd5649217c42684f23958568e533c711aa3", c.PoolPath[0])
	assert.Equal(t, uint64(77), c.SnapshotBlock, "explicit height wins")
}

func TestDetect_BelowThreshold(t *testing.T) {
	d := newTestDetector(t, 165)

	c, err := d.Detect(uniState(500, 10), sushiState(1000, 1020, 10), 0)
	require.NoError(t, err)
	assert.Nil(t, c)

	d = newTestDetector(t, 164)
	c, err = d.Detect(uniState(500, 10), sushiState(1000, 1020, 10), 0)
	require.NoError(t, err)
	require.NotNil(t, c, "edge equal to the minimum clears it")
}

func TestDetect_TieGoesToUniToSushi(t *testing.T) {
	d := newTestDetector(t, -100)

	edges, err := d.Edges(uniState(3000, 1), sushiState(1000, 1000, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(-60), edges.UniToSushi)
	assert.Equal(t, edges.UniToSushi, edges.SushiToUni)

	c, err := d.Detect(uniState(3000, 1), sushiState(1000, 1000, 1), 0)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, domain.DirectionUniToSushi, c.Direction)
}

func TestEdges_Antisymmetric(t *testing.T) {
	d := newTestDetector(t, 25)
	uni := uniState(500, 1)
	sushi := sushiState(1000, 1020, 1)

	edges, err := d.Edges(uni, sushi)
	require.NoError(t, err)
	assert.Equal(t, int64(164), edges.UniToSushi)
	assert.Equal(t, int64(-231), edges.SushiToUni)

	prices, err := d.MidPrices(uni, sushi)
	require.NoError(t, err)

	swapped, err := EdgeBpsAfterFees(prices.Concentrated, prices.ConstantProduct, 500, 3000)
	require.NoError(t, err)
	assert.Equal(t, edges.SushiToUni, swapped)

	original, err := EdgeBpsAfterFees(prices.ConstantProduct, prices.Concentrated, 3000, 500)
	require.NoError(t, err)
	assert.Equal(t, edges.UniToSushi, original)
}

func TestDetect_InvalidState(t *testing.T) {
	d := newTestDetector(t, 25)

	_, err := d.Detect(uniState(500, 1), sushiState(0, 1020, 1), 0)
	assert.ErrorIs(t, err, domain.ErrStaleOrInvalidState)

	bad := uniState(500, 1)
	bad.SqrtPriceX96 = big.NewInt(0)
	_, err = d.Detect(bad, sushiState(1000, 1020, 1), 0)
	assert.ErrorIs(t, err, domain.ErrStaleOrInvalidState)
}

func TestEdgeBpsAfterFees_Errors(t *testing.T) {
	one := amm.Ratio{Num: big.NewInt(1), Den: big.NewInt(1)}

	_, err := EdgeBpsAfterFees(amm.Ratio{Num: big.NewInt(1), Den: big.NewInt(0)}, one, 0, 0)
	assert.ErrorIs(t, err, domain.ErrStaleOrInvalidState)

	_, err = EdgeBpsAfterFees(one, amm.Ratio{Num: big.NewInt(0), Den: big.NewInt(1)}, 0, 0)
	assert.ErrorIs(t, err, domain.ErrStaleOrInvalidState)

	_, err = EdgeBpsAfterFees(one, one, 1_000_001, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	edge, err := EdgeBpsAfterFees(one, one, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), edge)
}

func TestNewDetector_Validation(t *testing.T) {
	_, err := NewDetector(DetectorConfig{Token0: testWETH, Token1: testUSDC, Token0Decimals: 18, Token1Decimals: 6, ConstantProductFeeBps: 10_001})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = NewDetector(DetectorConfig{Token0: testWETH, Token1: testUSDC, Token0Decimals: -1, Token1Decimals: 6})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = NewDetector(DetectorConfig{Token0Decimals: 18, Token1Decimals: 6})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}
