package ingest

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// maxTick bounds a concentrated-liquidity tick in both directions.
const maxTick = 887272

// DecodeSwapLog decodes a concentrated-liquidity Swap log emitted by pool.
func DecodeSwapLog(lg types.Log, chain domain.Chain, pool string) (domain.SwapEvent, error) {
	if err := checkLog(lg, pool, SwapTopic); err != nil {
		return domain.SwapEvent{}, err
	}
	if len(lg.Topics) < 3 {
		return domain.SwapEvent{}, fmt.Errorf("%w: swap log has %d topics, want 3", domain.ErrDecodeInvalidLog, len(lg.Topics))
	}

	values, err := concentratedPoolABI.Unpack("Swap", lg.Data)
	if err != nil {
		return domain.SwapEvent{}, fmt.Errorf("%w: unpack swap: %v", domain.ErrDecodeInvalidLog, err)
	}
	if len(values) != 5 {
		return domain.SwapEvent{}, fmt.Errorf("%w: swap log has %d values, want 5", domain.ErrDecodeInvalidLog, len(values))
	}
	amount0, ok0 := values[0].(*big.Int)
	amount1, ok1 := values[1].(*big.Int)
	sqrtPrice, ok2 := values[2].(*big.Int)
	liquidity, ok3 := values[3].(*big.Int)
	tick, ok4 := values[4].(*big.Int)
	if !ok0 || !ok1 || !ok2 || !ok3 || !ok4 {
		return domain.SwapEvent{}, fmt.Errorf("%w: unexpected swap value types", domain.ErrDecodeInvalidLog)
	}

	if err := checkUnsigned("sqrtPriceX96", sqrtPrice, 160); err != nil {
		return domain.SwapEvent{}, err
	}
	if err := checkUnsigned("liquidity", liquidity, 128); err != nil {
		return domain.SwapEvent{}, err
	}
	if !tick.IsInt64() || tick.Int64() < -maxTick || tick.Int64() > maxTick {
		return domain.SwapEvent{}, fmt.Errorf("%w: tick %s out of range", domain.ErrDecodeInvalidLog, tick)
	}

	return domain.SwapEvent{
		EventMeta:    newMeta(lg, chain, domain.VenueUniV3),
		Sender:       topicAddress(lg.Topics[1]),
		Recipient:    topicAddress(lg.Topics[2]),
		Amount0:      amount0,
		Amount1:      amount1,
		SqrtPriceX96: sqrtPrice,
		Liquidity:    liquidity,
		Tick:         int32(tick.Int64()),
	}, nil
}

// DecodeSyncLog decodes a constant-product Sync log emitted by pair.
func DecodeSyncLog(lg types.Log, chain domain.Chain, pair string) (domain.SyncEvent, error) {
	if err := checkLog(lg, pair, SyncTopic); err != nil {
		return domain.SyncEvent{}, err
	}

	values, err := constantProductPairABI.Unpack("Sync", lg.Data)
	if err != nil {
		return domain.SyncEvent{}, fmt.Errorf("%w: unpack sync: %v", domain.ErrDecodeInvalidLog, err)
	}
	if len(values) != 2 {
		return domain.SyncEvent{}, fmt.Errorf("%w: sync log has %d values, want 2", domain.ErrDecodeInvalidLog, len(values))
	}
	reserve0, ok0 := values[0].(*big.Int)
	reserve1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return domain.SyncEvent{}, fmt.Errorf("%w: unexpected sync value types", domain.ErrDecodeInvalidLog)
	}
	if err := checkUnsigned("reserve0", reserve0, 112); err != nil {
		return domain.SyncEvent{}, err
	}
	if err := checkUnsigned("reserve1", reserve1, 112); err != nil {
		return domain.SyncEvent{}, err
	}

	return domain.SyncEvent{
		EventMeta: newMeta(lg, chain, domain.VenueSushiV2),
		Reserve0:  reserve0,
		Reserve1:  reserve1,
	}, nil
}

func checkLog(lg types.Log, emitter string, topic common.Hash) error {
	if !strings.EqualFold(lg.Address.Hex(), emitter) {
		return fmt.Errorf("%w: log from %s, want %s", domain.ErrDecodeInvalidLog, lg.Address.Hex(), emitter)
	}
	if len(lg.Topics) == 0 {
		return fmt.Errorf("%w: log has no topics", domain.ErrDecodeInvalidLog)
	}
	if lg.Removed {
		return fmt.Errorf("%w: log %s:%d was removed by a reorg", domain.ErrDecodeInvalidLog, lg.TxHash.Hex(), lg.Index)
	}
	if lg.Topics[0] != topic {
		return fmt.Errorf("%w: topic %s", domain.ErrUnsupportedEvent, lg.Topics[0].Hex())
	}
	return nil
}

// checkUnsigned rejects values that do not fit a Solidity uintN.
func checkUnsigned(name string, v *big.Int, bits int) error {
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", domain.ErrDecodeInvalidLog, name)
	}
	u, overflow := uint256.FromBig(v)
	if overflow || u.BitLen() > bits {
		return fmt.Errorf("%w: %s %s exceeds uint%d", domain.ErrDecodeInvalidLog, name, v, bits)
	}
	return nil
}

func newMeta(lg types.Log, chain domain.Chain, venue domain.Venue) domain.EventMeta {
	return domain.EventMeta{
		TraceID:     uuid.NewString(),
		Chain:       chain,
		Venue:       venue,
		PoolAddress: strings.ToLower(lg.Address.Hex()),
		BlockNumber: lg.BlockNumber,
		TxHash:      strings.ToLower(lg.TxHash.Hex()),
		LogIndex:    lg.Index,
	}
}

func topicAddress(h common.Hash) string {
	return strings.ToLower(common.BytesToAddress(h.Bytes()).Hex())
}
