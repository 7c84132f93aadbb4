package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// PlanConstraints bound the execution of a Plan.
type PlanConstraints struct {
	MinAmountOut   *big.Int
	MaxSlippageBps int
	TTLBlocks      uint64
}

// PlanStep is one swap of a Plan.
type PlanStep struct {
	Venue       Venue  `json:"venue"`
	PoolAddress string `json:"pool_address"`
	TokenIn     string `json:"token_in"`
	TokenOut    string `json:"token_out"`
}

// Plan is an execution-ready sizing of a Candidate. It carries the candidate's
// ID and is never mutated after the optimizer returns it.
type Plan struct {
	ID                   string
	Chain                Chain
	AmountIn             *big.Int
	ExpectedAmountOut    *big.Int
	ExpectedNetProfitUSD float64
	Constraints          PlanConstraints
	Steps                []PlanStep
	SnapshotBlock        uint64
	CreatedAt            time.Time
}

// planJSON is the wire shape of a Plan. Amounts travel as decimal strings so
// consumers without arbitrary-precision numbers keep every digit.
type planJSON struct {
	ID                   string          `json:"trace_id"`
	Chain                Chain           `json:"chain"`
	AmountIn             string          `json:"amount_in_wei"`
	ExpectedAmountOut    string          `json:"expected_amount_out_wei"`
	ExpectedNetProfitUSD float64         `json:"expected_net_profit_usd"`
	Constraints          constraintsJSON `json:"constraints"`
	Steps                []PlanStep      `json:"steps"`
	SnapshotBlock        uint64          `json:"snapshot_block"`
	CreatedAt            time.Time       `json:"created_at"`
}

type constraintsJSON struct {
	MinAmountOut   string `json:"min_out_wei"`
	MaxSlippageBps int    `json:"max_slippage_bps"`
	TTLBlocks      uint64 `json:"ttl_blocks"`
}

// MarshalJSON implements json.Marshaler.
func (p Plan) MarshalJSON() ([]byte, error) {
	w := planJSON{
		ID:                   p.ID,
		Chain:                p.Chain,
		AmountIn:             bigString(p.AmountIn),
		ExpectedAmountOut:    bigString(p.ExpectedAmountOut),
		ExpectedNetProfitUSD: p.ExpectedNetProfitUSD,
		Constraints: constraintsJSON{
			MinAmountOut:   bigString(p.Constraints.MinAmountOut),
			MaxSlippageBps: p.Constraints.MaxSlippageBps,
			TTLBlocks:      p.Constraints.TTLBlocks,
		},
		Steps:         p.Steps,
		SnapshotBlock: p.SnapshotBlock,
		CreatedAt:     p.CreatedAt,
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var w planJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	amountIn, err := ParseBigInt(w.AmountIn, "amount_in_wei")
	if err != nil {
		return err
	}
	amountOut, err := ParseBigInt(w.ExpectedAmountOut, "expected_amount_out_wei")
	if err != nil {
		return err
	}
	minOut, err := ParseBigInt(w.Constraints.MinAmountOut, "min_out_wei")
	if err != nil {
		return err
	}
	*p = Plan{
		ID:                   w.ID,
		Chain:                w.Chain,
		AmountIn:             amountIn,
		ExpectedAmountOut:    amountOut,
		ExpectedNetProfitUSD: w.ExpectedNetProfitUSD,
		Constraints: PlanConstraints{
			MinAmountOut:   minOut,
			MaxSlippageBps: w.Constraints.MaxSlippageBps,
			TTLBlocks:      w.Constraints.TTLBlocks,
		},
		Steps:         w.Steps,
		SnapshotBlock: w.SnapshotBlock,
		CreatedAt:     w.CreatedAt,
	}
	return nil
}

// ParseBigInt parses a base-10 integer string. field names the value in the
// returned error.
func ParseBigInt(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a base-10 integer: %q", ErrInvalidParameter, field, s)
	}
	return v, nil
}
