package domain

import (
	"context"
	"time"
)

// PoolStateCache holds the latest snapshot per (chain, venue, pool). Missing
// keys return ErrNotFound; undecodable entries return ErrStaleOrInvalidState.
type PoolStateCache interface {
	GetConcentrated(ctx context.Context, chain Chain, venue Venue, pool string) (ConcentratedLiquidityState, error)
	GetConstantProduct(ctx context.Context, chain Chain, venue Venue, pool string) (ConstantProductState, error)
	Put(ctx context.Context, state PoolState) error
}

// HeadTracker records the last block height seen by ingestion.
type HeadTracker interface {
	LastHead(ctx context.Context, chain Chain) (block uint64, ok bool, err error)
	SetHead(ctx context.Context, chain Chain, block uint64) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter admits at most limit requests per window for a key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus channels.
const (
	ChannelCandidates = "candidates"
	ChannelPlans      = "plans"
)
