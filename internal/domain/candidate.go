package domain

import (
	"slices"
	"time"
)

// Direction names which venue a round trip buys token0 on first.
type Direction string

const (
	// DirectionUniToSushi buys on the concentrated-liquidity pool and sells on
	// the constant-product pair.
	DirectionUniToSushi Direction = "UNI_TO_SUSHI"
	// DirectionSushiToUni buys on the constant-product pair and sells on the
	// concentrated-liquidity pool.
	DirectionSushiToUni Direction = "SUSHI_TO_UNI"
)

// Candidate is a detected, unsized round trip token1 -> token0 -> token1.
// It is never mutated after the detector returns it.
type Candidate struct {
	ID             string    `json:"trace_id"`
	Chain          Chain     `json:"chain"`
	TokenIn        string    `json:"token_in"`
	TokenOut       string    `json:"token_out"`
	TokenPath      []string  `json:"path_tokens"`
	VenuePath      []Venue   `json:"path_venues"`
	PoolPath       []string  `json:"path_pools"`
	Direction      Direction `json:"direction"`
	RoughEdgeBps   int64     `json:"rough_edge_bps"`
	RoughProfitUSD float64   `json:"rough_profit_usd"`
	SnapshotBlock  uint64    `json:"snapshot_block"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clone returns a copy that shares no slices with c.
func (c Candidate) Clone() Candidate {
	out := c
	out.TokenPath = slices.Clone(c.TokenPath)
	out.VenuePath = slices.Clone(c.VenuePath)
	out.PoolPath = slices.Clone(c.PoolPath)
	return out
}
