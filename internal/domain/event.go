package domain

import "math/big"

// DexEventType tags a decoded pool log.
type DexEventType string

const (
	EventUniV3Swap   DexEventType = "UNIV3_SWAP"
	EventSushiV2Sync DexEventType = "SUSHIV2_SYNC"
)

// EventMeta locates a decoded log on chain.
type EventMeta struct {
	TraceID     string
	Chain       Chain
	Venue       Venue
	PoolAddress string
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
}

// DexEvent is a decoded pool log. Implementations are SwapEvent and SyncEvent.
type DexEvent interface {
	Type() DexEventType
	Meta() EventMeta
}

// SwapEvent is a concentrated-liquidity Swap log.
type SwapEvent struct {
	EventMeta
	Sender       string
	Recipient    string
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
}

func (SwapEvent) Type() DexEventType { return EventUniV3Swap }
func (e SwapEvent) Meta() EventMeta  { return e.EventMeta }

// SyncEvent is a constant-product Sync log.
type SyncEvent struct {
	EventMeta
	Reserve0 *big.Int
	Reserve1 *big.Int
}

func (SyncEvent) Type() DexEventType { return EventSushiV2Sync }
func (e SyncEvent) Meta() EventMeta  { return e.EventMeta }
