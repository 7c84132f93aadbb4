package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/atomicnexus/internal/amm"
	"github.com/alanyoungcy/atomicnexus/internal/domain"
	"github.com/alanyoungcy/atomicnexus/internal/optimizer"
	"github.com/alanyoungcy/atomicnexus/internal/service"
)

// dryRunBlock is the block both synthetic snapshots are stamped with.
const dryRunBlock = 1

// DryRunMode seeds the in-memory stores with a synthetic market where the
// constant-product pair prices WETH at 3100 against 2900 on the
// concentrated-liquidity pool, runs one scan cycle and logs the result.
func (a *App) DryRunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting dryrun mode")
	outcome, plan, err := a.dryRun(ctx, deps)
	if err != nil {
		return err
	}
	if plan == nil {
		a.logger.InfoContext(ctx, "dryrun finished without a plan", slog.String("outcome", string(outcome)))
		return nil
	}
	a.logger.InfoContext(ctx, "dryrun plan",
		slog.String("trace_id", plan.ID),
		slog.Float64("amount_in", optimizer.ToDisplay(plan.AmountIn, a.cfg.Chain.Token1Decimals)),
		slog.Float64("expected_out", optimizer.ToDisplay(plan.ExpectedAmountOut, a.cfg.Chain.Token1Decimals)),
		slog.Float64("min_out", optimizer.ToDisplay(plan.Constraints.MinAmountOut, a.cfg.Chain.Token1Decimals)),
		slog.Float64("expected_net_profit_usd", plan.ExpectedNetProfitUSD),
		slog.Int("steps", len(plan.Steps)),
	)
	return nil
}

// dryRun returns the cycle outcome and the plan it stored, if any.
func (a *App) dryRun(ctx context.Context, deps *Dependencies) (service.Outcome, *domain.Plan, error) {
	if err := seedSyntheticMarket(ctx, a.cfg.Chain.Name, a.cfg.Chain.PoolAddress, a.cfg.Chain.PairAddress, deps); err != nil {
		return service.OutcomeError, nil, err
	}

	outcome := a.newScanner(deps).Cycle(ctx)
	if outcome != service.OutcomePlan {
		return outcome, nil, nil
	}
	plans, err := deps.Plans.ListRecent(ctx, 1)
	if err != nil {
		return outcome, nil, fmt.Errorf("app: dryrun: read plan: %w", err)
	}
	if len(plans) == 0 {
		return outcome, nil, fmt.Errorf("app: dryrun: plan outcome without a stored plan")
	}
	return outcome, &plans[0], nil
}

func seedSyntheticMarket(ctx context.Context, chainName, pool, pair string, deps *Dependencies) error {
	chain := domain.Chain(chainName)

	sqrtP, err := amm.SqrtPriceX96FromPrice(2900, 18, 6)
	if err != nil {
		return fmt.Errorf("app: dryrun: %w", err)
	}
	liquidity, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	cl, err := domain.NewConcentratedLiquidityState(chain, domain.VenueUniV3, pool, sqrtP, 0, liquidity, 500, dryRunBlock)
	if err != nil {
		return fmt.Errorf("app: dryrun: %w", err)
	}

	reserve0, _ := new(big.Int).SetString("1000000000000000000000", 10)
	reserve1 := big.NewInt(3_100_000_000_000)
	cp, err := domain.NewConstantProductState(chain, domain.VenueSushiV2, pair, reserve0, reserve1, dryRunBlock)
	if err != nil {
		return fmt.Errorf("app: dryrun: %w", err)
	}

	for _, s := range []domain.PoolState{cl, cp} {
		if err := deps.Cache.Put(ctx, s); err != nil {
			return fmt.Errorf("app: dryrun: seed %s: %w", s.Address(), err)
		}
	}
	if err := deps.Heads.SetHead(ctx, chain, dryRunBlock); err != nil {
		return fmt.Errorf("app: dryrun: seed head: %w", err)
	}
	return nil
}
