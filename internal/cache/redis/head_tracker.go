package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// HeadTracker implements domain.HeadTracker with a plain string key per
// chain.
type HeadTracker struct {
	rdb *redis.Client
}

// NewHeadTracker creates a HeadTracker backed by the given Client.
func NewHeadTracker(c *Client) *HeadTracker {
	return &HeadTracker{rdb: c.Underlying()}
}

// LastHead returns the last recorded block. ok is false when none has been
// recorded yet.
func (ht *HeadTracker) LastHead(ctx context.Context, chain domain.Chain) (uint64, bool, error) {
	raw, err := ht.rdb.Get(ctx, headKey(chain)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis: get head %s: %w", chain, err)
	}
	block, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis: parse head %s: %q: %w", chain, raw, err)
	}
	return block, true, nil
}

// SetHead records block as the latest head.
func (ht *HeadTracker) SetHead(ctx context.Context, chain domain.Chain, block uint64) error {
	if err := ht.rdb.Set(ctx, headKey(chain), strconv.FormatUint(block, 10), 0).Err(); err != nil {
		return fmt.Errorf("redis: set head %s: %w", chain, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.HeadTracker = (*HeadTracker)(nil)
