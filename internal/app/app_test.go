package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/atomicnexus/internal/config"
	"github.com/alanyoungcy/atomicnexus/internal/domain"
	"github.com/alanyoungcy/atomicnexus/internal/service"
)

func dryRunApp(t *testing.T, mutate func(*config.Config)) (*App, *Dependencies) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Mode = "dryrun"
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, cleanup, err := Wire(context.Background(), &cfg, logger)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return New(&cfg, logger), deps
}

func TestDryRun_BuildsPlan(t *testing.T) {
	a, deps := dryRunApp(t, nil)
	ctx := context.Background()

	outcome, plan, err := a.dryRun(ctx, deps)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomePlan, outcome)
	require.NotNil(t, plan)

	assert.Equal(t, "93409407184", plan.AmountIn.String())
	assert.Equal(t, "96407664354", plan.ExpectedAmountOut.String())
	assert.Equal(t, "95925626032", plan.Constraints.MinAmountOut.String())
	assert.InDelta(t, 2998.25717, plan.ExpectedNetProfitUSD, 1e-6)
	assert.Equal(t, uint64(dryRunBlock), plan.SnapshotBlock)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, domain.VenueUniV3, plan.Steps[0].Venue)
	assert.Equal(t, domain.VenueSushiV2, plan.Steps[1].Venue)

	candidates, err := deps.Candidates.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, candidates[0].ID, plan.ID)
}

func TestDryRun_WithoutOptimizerStopsAtCandidate(t *testing.T) {
	a, deps := dryRunApp(t, func(c *config.Config) { c.Scanner.Optimize = false })

	outcome, plan, err := a.dryRun(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeCandidate, outcome)
	assert.Nil(t, plan)
}

func TestDryRun_HighThresholdFindsNothing(t *testing.T) {
	a, deps := dryRunApp(t, func(c *config.Config) { c.Scanner.MinEdgeBps = 2_000 })

	outcome, plan, err := a.dryRun(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeNoCandidate, outcome)
	assert.Nil(t, plan)
}

func TestRun_DryRunMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "dryrun"
	require.NoError(t, cfg.Validate())

	a := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer a.Close()
	assert.NoError(t, a.Run(context.Background()))
}

func TestRun_UnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "dryrun"
	a := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer a.Close()

	cfg.Mode = "trade"
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trade")
}
