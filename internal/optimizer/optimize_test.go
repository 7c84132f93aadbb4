package optimizer

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
	weth      = "0x82af49447d8a07e3bd95bd0d56f35241523fbab1"
	usdc      = "0xff970a61a04b1ca14834a43f5de4533ebddb5cc8"
	uniPool   = "0xc31e54c7a869b9fcbecc14363cf510d1c41fa443"
	sushiPair = "0x905dfcd5649217c42684f23958568e533c711aa3"
)

func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func scenarioStates(t *testing.T, sushiUSDC int64) (domain.ConcentratedLiquidityState, domain.ConstantProductState) {
	t.Helper()
	sqrtP, err := amm.SqrtPriceX96FromPrice(2900, 18, 6)
	require.NoError(t, err)
	liquidity, ok := new(big.Int).SetString("1000000000000000000000000", 10)
	require.True(t, ok)

	cl, err := domain.NewConcentratedLiquidityState(domain.ChainArbitrum, domain.VenueUniV3, uniPool, sqrtP, 0, liquidity, 500, 100)
	require.NoError(t, err)
	cp, err := domain.NewConstantProductState(domain.ChainArbitrum, domain.VenueSushiV2, sushiPair, ether(1000), usd(sushiUSDC), 100)
	require.NoError(t, err)
	return cl, cp
}

func uniToSushi() domain.Candidate {
	return domain.Candidate{
		ID:            "trace-opt",
		Chain:         domain.ChainArbitrum,
		TokenIn:       usdc,
		TokenOut:      usdc,
		TokenPath:     []string{usdc, weth, usdc},
		VenuePath:     []domain.Venue{domain.VenueUniV3, domain.VenueSushiV2},
		PoolPath:      []string{uniPool, sushiPair},
		Direction:     domain.DirectionUniToSushi,
		RoughEdgeBps:  600,
		SnapshotBlock: 100,
	}
}

func scenarioConfig(iterations int) Config {
	return Config{
		Token0:                weth,
		Token1:                usdc,
		Token1Decimals:        6,
		ConstantProductFeeBps: 30,
		MinAmountIn:           usd(1_000),
		MaxAmountIn:           usd(500_000),
		Iterations:            iterations,
		MaxSlippageBps:        50,
		TTLBlocks:             3,
	}
}

func newTestOptimizer(cfg Config) *Optimizer {
	o := New(cfg)
	o.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return o
}

func TestOptimize_ProfitableScenario(t *testing.T) {
	cl, cp := scenarioStates(t, 3_100_000)

	plan, err := newTestOptimizer(scenarioConfig(80)).Optimize(uniToSushi(), cl, cp)
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.Equal(t, "trace-opt", plan.ID)
	assert.Equal(t, domain.ChainArbitrum, plan.Chain)
	assert.Equal(t, "93409407184", plan.AmountIn.String())
	assert.Equal(t, "96407664354", plan.ExpectedAmountOut.String())
	assert.InDelta(t, 2998.25717, plan.ExpectedNetProfitUSD, 1e-9)
	assert.Greater(t, plan.ExpectedNetProfitUSD, 0.0)

	assert.Equal(t, "95925626032", plan.Constraints.MinAmountOut.String())
	assert.Equal(t, 50, plan.Constraints.MaxSlippageBps)
	assert.Equal(t, uint64(3), plan.Constraints.TTLBlocks)
	assert.Equal(t, uint64(100), plan.SnapshotBlock)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, domain.PlanStep{Venue: domain.VenueUniV3, PoolAddress: uniPool, TokenIn: usdc, TokenOut: weth}, plan.Steps[0])
	assert.Equal(t, domain.PlanStep{Venue: domain.VenueSushiV2, PoolAddress: sushiPair, TokenIn: weth, TokenOut: usdc}, plan.Steps[1])
}

func TestOptimize_StableAcrossIterationBudgets(t *testing.T) {
	cl, cp := scenarioStates(t, 3_100_000)

	p60, err := newTestOptimizer(scenarioConfig(60)).Optimize(uniToSushi(), cl, cp)
	require.NoError(t, err)
	p80, err := newTestOptimizer(scenarioConfig(80)).Optimize(uniToSushi(), cl, cp)
	require.NoError(t, err)
	pDefault, err := newTestOptimizer(scenarioConfig(0)).Optimize(uniToSushi(), cl, cp)
	require.NoError(t, err)

	require.NotNil(t, p60)
	require.NotNil(t, p80)
	require.NotNil(t, pDefault)
	assert.Equal(t, p80.AmountIn.String(), p60.AmountIn.String())
	assert.Equal(t, p80.AmountIn.String(), pDefault.AmountIn.String())

	again, err := newTestOptimizer(scenarioConfig(80)).Optimize(uniToSushi(), cl, cp)
	require.NoError(t, err)
	assert.Equal(t, p80.AmountIn.String(), again.AmountIn.String())
}

func TestOptimize_LocalMaximum(t *testing.T) {
	cl, cp := scenarioStates(t, 3_100_000)
	plan, err := newTestOptimizer(scenarioConfig(80)).Optimize(uniToSushi(), cl, cp)
	require.NoError(t, err)
	require.NotNil(t, plan)

	rt, err := NewRoundTrip(uniToSushi(), weth, usdc, cl, cp, amm.Fees{ConstantProductBps: 30})
	require.NoError(t, err)

	best, err := rt.Profit(plan.AmountIn)
	require.NoError(t, err)
	for _, delta := range []int64{1, 1_000, 1_000_000} {
		below, err := rt.Profit(new(big.Int).Sub(plan.AmountIn, big.NewInt(delta)))
		require.NoError(t, err)
		above, err := rt.Profit(new(big.Int).Add(plan.AmountIn, big.NewInt(delta)))
		require.NoError(t, err)

		assert.GreaterOrEqual(t, best.Cmp(below), 0, "delta %d below", delta)
		assert.GreaterOrEqual(t, best.Cmp(above), 0, "delta %d above", delta)
	}
}

func sushiToUni() domain.Candidate {
	c := uniToSushi()
	c.ID = "trace-rev"
	c.VenuePath = []domain.Venue{domain.VenueSushiV2, domain.VenueUniV3}
	c.PoolPath = []string{sushiPair, uniPool}
	c.Direction = domain.DirectionSushiToUni
	return c
}

func TestOptimize_SushiToUni(t *testing.T) {
	cl, cp := scenarioStates(t, 2_700_000)

	plan, err := newTestOptimizer(scenarioConfig(80)).Optimize(sushiToUni(), cl, cp)
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.Equal(t, "trace-rev", plan.ID)
	assert.Equal(t, "93594128232", plan.AmountIn.String())
	assert.InDelta(t, 3234.750104, plan.ExpectedNetProfitUSD, 1e-6)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, domain.PlanStep{Venue: domain.VenueSushiV2, PoolAddress: sushiPair, TokenIn: usdc, TokenOut: weth}, plan.Steps[0])
	assert.Equal(t, domain.PlanStep{Venue: domain.VenueUniV3, PoolAddress: uniPool, TokenIn: weth, TokenOut: usdc}, plan.Steps[1])

	p60, err := newTestOptimizer(scenarioConfig(60)).Optimize(sushiToUni(), cl, cp)
	require.NoError(t, err)
	require.NotNil(t, p60)
	assert.Equal(t, plan.AmountIn.String(), p60.AmountIn.String())

	rt, err := NewRoundTrip(sushiToUni(), weth, usdc, cl, cp, amm.Fees{ConstantProductBps: 30})
	require.NoError(t, err)
	best, err := rt.Profit(plan.AmountIn)
	require.NoError(t, err)
	for _, delta := range []int64{1, 1_000, 1_000_000} {
		below, err := rt.Profit(new(big.Int).Sub(plan.AmountIn, big.NewInt(delta)))
		require.NoError(t, err)
		above, err := rt.Profit(new(big.Int).Add(plan.AmountIn, big.NewInt(delta)))
		require.NoError(t, err)

		assert.GreaterOrEqual(t, best.Cmp(below), 0, "delta %d below", delta)
		assert.GreaterOrEqual(t, best.Cmp(above), 0, "delta %d above", delta)
	}

	// The same pair priced above the pool has no profitable size this way.
	cl, cp = scenarioStates(t, 3_100_000)
	plan, err = newTestOptimizer(scenarioConfig(80)).Optimize(sushiToUni(), cl, cp)
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestOptimize_NoEdgeReturnsNoPlan(t *testing.T) {
	cl, cp := scenarioStates(t, 2_900_000)

	plan, err := newTestOptimizer(scenarioConfig(80)).Optimize(uniToSushi(), cl, cp)
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestOptimize_DoesNotMutateStates(t *testing.T) {
	cl, cp := scenarioStates(t, 3_100_000)
	sqrtBefore := new(big.Int).Set(cl.SqrtPriceX96)
	r1Before := new(big.Int).Set(cp.Reserve1)

	_, err := newTestOptimizer(scenarioConfig(80)).Optimize(uniToSushi(), cl, cp)
	require.NoError(t, err)
	assert.Equal(t, 0, cl.SqrtPriceX96.Cmp(sqrtBefore))
	assert.Equal(t, 0, cp.Reserve1.Cmp(r1Before))
}

func TestOptimize_InvalidCandidate(t *testing.T) {
	cl, cp := scenarioStates(t, 3_100_000)
	broken := cp
	broken.Reserve0 = big.NewInt(0)

	testCases := []struct {
		name   string
		mutate func(c *domain.Candidate)
	}{
		{name: "token path is not a round trip", mutate: func(c *domain.Candidate) { c.TokenPath = []string{usdc, weth, weth} }},
		{name: "token path too short", mutate: func(c *domain.Candidate) { c.TokenPath = []string{usdc, weth} }},
		{name: "single venue", mutate: func(c *domain.Candidate) { c.VenuePath = []domain.Venue{domain.VenueUniV3} }},
		{name: "same venue twice", mutate: func(c *domain.Candidate) {
			c.VenuePath = []domain.Venue{domain.VenueUniV3, domain.VenueUniV3}
			c.PoolPath = []string{uniPool, uniPool}
		}},
		{name: "unknown venue", mutate: func(c *domain.Candidate) { c.VenuePath = []domain.Venue{domain.VenueUniV3, "curve"} }},
		{name: "pool does not match state", mutate: func(c *domain.Candidate) { c.PoolPath = []string{uniPool, weth} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := uniToSushi().Clone()
			tc.mutate(&c)

			// The broken pair would fail simulation; the shape check must run first.
			_, err := newTestOptimizer(scenarioConfig(80)).Optimize(c, cl, broken)
			assert.ErrorIs(t, err, domain.ErrInvalidCandidate)
		})
	}
}

func TestOptimize_MixedCaseAddressesAccepted(t *testing.T) {
	cl, cp := scenarioStates(t, 3_100_000)
	c := uniToSushi()
	c.TokenPath = []string{
		"0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8",
		"0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
		"0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8",
	}
	c.PoolPath = []string{"0xC31E54c7a869B9FcBEcc14363CF510d1c41fa443", sushiPair}

	plan, err := newTestOptimizer(scenarioConfig(80)).Optimize(c, cl, cp)
	require.NoError(t, err)
	require.NotNil(t, plan)
}

func TestOptimize_ParameterValidation(t *testing.T) {
	cl, cp := scenarioStates(t, 3_100_000)

	testCases := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr error
	}{
		{name: "zero lower bound", mutate: func(cfg *Config) { cfg.MinAmountIn = big.NewInt(0) }, wantErr: domain.ErrSearchFailed},
		{name: "negative upper bound", mutate: func(cfg *Config) { cfg.MaxAmountIn = big.NewInt(-1) }, wantErr: domain.ErrSearchFailed},
		{name: "missing bound", mutate: func(cfg *Config) { cfg.MaxAmountIn = nil }, wantErr: domain.ErrSearchFailed},
		{name: "reversed bounds", mutate: func(cfg *Config) { cfg.MinAmountIn, cfg.MaxAmountIn = usd(500_000), usd(1_000) }, wantErr: domain.ErrSearchFailed},
		{name: "negative iterations", mutate: func(cfg *Config) { cfg.Iterations = -1 }, wantErr: domain.ErrSearchFailed},
		{name: "zero ttl", mutate: func(cfg *Config) { cfg.TTLBlocks = 0 }, wantErr: domain.ErrInvalidParameter},
		{name: "slippage above 100%", mutate: func(cfg *Config) { cfg.MaxSlippageBps = 10_001 }, wantErr: domain.ErrInvalidParameter},
		{name: "negative slippage", mutate: func(cfg *Config) { cfg.MaxSlippageBps = -1 }, wantErr: domain.ErrInvalidParameter},
		{name: "bounds are checked before the candidate", mutate: func(cfg *Config) {
			cfg.MinAmountIn = big.NewInt(0)
			cfg.Token1 = weth
		}, wantErr: domain.ErrSearchFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := scenarioConfig(80)
			tc.mutate(&cfg)
			plan, err := newTestOptimizer(cfg).Optimize(uniToSushi(), cl, cp)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, plan)
		})
	}
}

func TestToDisplay(t *testing.T) {
	assert.InDelta(t, 2998.25717, ToDisplay(big.NewInt(2_998_257_170), 6), 1e-9)
	assert.InDelta(t, 1.234567, ToDisplay(big.NewInt(1_234_567_891), 9), 1e-12)
	assert.InDelta(t, -0.5, ToDisplay(big.NewInt(-500_000), 6), 1e-12)
}
