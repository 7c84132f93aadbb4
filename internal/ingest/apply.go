package ingest

import (
	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// ApplySwap returns the pool state a Swap log leaves behind. Swap logs do not
// carry the fee tier, so the bootstrap value is passed in.
func ApplySwap(ev domain.SwapEvent, feePpm uint32) (domain.ConcentratedLiquidityState, error) {
	return domain.NewConcentratedLiquidityState(
		ev.Chain,
		ev.Venue,
		ev.PoolAddress,
		ev.SqrtPriceX96,
		ev.Tick,
		ev.Liquidity,
		feePpm,
		ev.BlockNumber,
	)
}

// ApplySync returns the pair state a Sync log leaves behind.
func ApplySync(ev domain.SyncEvent) (domain.ConstantProductState, error) {
	return domain.NewConstantProductState(
		ev.Chain,
		ev.Venue,
		ev.PoolAddress,
		ev.Reserve0,
		ev.Reserve1,
		ev.BlockNumber,
	)
}
