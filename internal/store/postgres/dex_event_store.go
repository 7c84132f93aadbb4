package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// DexEventStore implements domain.DexEventStore.
type DexEventStore struct {
	pool *pgxpool.Pool
}

// NewDexEventStore creates a DexEventStore backed by the given pool.
func NewDexEventStore(pool *pgxpool.Pool) *DexEventStore {
	return &DexEventStore{pool: pool}
}

// InsertEvent stores a decoded log. A log already stored under the same
// (tx hash, log index) is ignored.
func (s *DexEventStore) InsertEvent(ctx context.Context, ev domain.DexEvent) error {
	const query = `
		INSERT INTO dex_events (
			trace_id, chain, venue, pool_address, event_type,
			block_number, tx_hash, log_index, data
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		ON CONFLICT (tx_hash, log_index) DO NOTHING`

	meta := ev.Meta()
	data, err := json.Marshal(eventPayload(ev))
	if err != nil {
		return fmt.Errorf("postgres: encode dex event %s:%d: %w", meta.TxHash, meta.LogIndex, err)
	}

	if _, err := s.pool.Exec(ctx, query,
		meta.TraceID, string(meta.Chain), string(meta.Venue), meta.PoolAddress, string(ev.Type()),
		int64(meta.BlockNumber), meta.TxHash, int32(meta.LogIndex), data,
	); err != nil {
		return fmt.Errorf("postgres: insert dex event %s:%d: %w", meta.TxHash, meta.LogIndex, err)
	}
	return nil
}

// InsertPoolStateUpdate appends a pool snapshot to the history table.
func (s *DexEventStore) InsertPoolStateUpdate(ctx context.Context, state domain.PoolState) error {
	const query = `
		INSERT INTO pool_state_updates (chain, venue, pool_address, block_number, state)
		VALUES ($1, $2, $3, $4, $5::jsonb)`

	data, err := json.Marshal(statePayload(state))
	if err != nil {
		return fmt.Errorf("postgres: encode pool state %s: %w", state.Address(), err)
	}
	if _, err := s.pool.Exec(ctx, query,
		string(state.ChainID()), string(state.VenueID()), state.Address(), int64(state.Block()), data,
	); err != nil {
		return fmt.Errorf("postgres: insert pool state update %s: %w", state.Address(), err)
	}
	return nil
}

// eventPayload is the jsonb document of a dex event. Big integers are
// strings.
func eventPayload(ev domain.DexEvent) map[string]any {
	meta := ev.Meta()
	out := map[string]any{
		"type":         string(ev.Type()),
		"trace_id":     meta.TraceID,
		"chain":        string(meta.Chain),
		"venue":        string(meta.Venue),
		"pool_address": meta.PoolAddress,
		"block_number": meta.BlockNumber,
		"tx_hash":      meta.TxHash,
		"log_index":    meta.LogIndex,
	}
	switch e := ev.(type) {
	case domain.SwapEvent:
		out["sender"] = e.Sender
		out["recipient"] = e.Recipient
		out["amount0"] = intString(e.Amount0)
		out["amount1"] = intString(e.Amount1)
		out["sqrtPriceX96"] = intString(e.SqrtPriceX96)
		out["liquidity"] = intString(e.Liquidity)
		out["tick"] = e.Tick
	case domain.SyncEvent:
		out["reserve0"] = intString(e.Reserve0)
		out["reserve1"] = intString(e.Reserve1)
	}
	return out
}

func statePayload(state domain.PoolState) map[string]any {
	out := map[string]any{
		"chain":        string(state.ChainID()),
		"venue":        string(state.VenueID()),
		"pool_address": state.Address(),
		"block_number": state.Block(),
	}
	switch s := state.(type) {
	case domain.ConcentratedLiquidityState:
		out["sqrtPriceX96"] = intString(s.SqrtPriceX96)
		out["tick"] = s.Tick
		out["liquidity"] = intString(s.Liquidity)
		out["fee"] = s.FeePpm
	case domain.ConstantProductState:
		out["reserve0"] = intString(s.Reserve0)
		out["reserve1"] = intString(s.Reserve1)
	}
	return out
}

func intString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// Compile-time interface check.
var _ domain.DexEventStore = (*DexEventStore)(nil)
