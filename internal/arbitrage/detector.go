package arbitrage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/atomicnexus/internal/amm"
	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// DetectorConfig configures the edge detector. Token0 is the base asset the
// round trip passes through (WETH) and Token1 the quote asset it starts and
// ends in (USDC).
type DetectorConfig struct {
	Chain                 domain.Chain
	Token0                string
	Token1                string
	Token0Decimals        int
	Token1Decimals        int
	ConstantProductFeeBps int64
	MinEdgeBps            int64
	NotionalUSD           float64
}

// Edges holds the fee-adjusted edge of both round-trip directions.
type Edges struct {
	UniToSushi int64
	SushiToUni int64
}

// MidPrices are both venues' token1-per-token0 prices.
type MidPrices struct {
	Concentrated    amm.Ratio
	ConstantProduct amm.Ratio
}

// Detector compares a concentrated-liquidity pool with a constant-product
// pair and emits a Candidate when a direction clears the minimum edge.
type Detector struct {
	cfg      DetectorConfig
	cpFeePpm int64

	now   func() time.Time
	newID func() string
}

// NewDetector validates cfg and returns a detector.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	cpFeePpm, err := amm.BpsToPpm(cfg.ConstantProductFeeBps)
	if err != nil {
		return nil, fmt.Errorf("arbitrage: constant-product fee: %w", err)
	}
	if cfg.Token0Decimals < 0 || cfg.Token1Decimals < 0 {
		return nil, fmt.Errorf("%w: token decimals must be >= 0, got %d/%d",
			domain.ErrInvalidParameter, cfg.Token0Decimals, cfg.Token1Decimals)
	}
	if cfg.Token0 == "" || cfg.Token1 == "" {
		return nil, fmt.Errorf("%w: token addresses are required", domain.ErrInvalidParameter)
	}
	cfg.Token0 = strings.ToLower(cfg.Token0)
	cfg.Token1 = strings.ToLower(cfg.Token1)

	return &Detector{
		cfg:      cfg,
		cpFeePpm: cpFeePpm,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}, nil
}

// Config returns the detector's normalized configuration.
func (d *Detector) Config() DetectorConfig { return d.cfg }

// MidPrices returns both venues' prices without fees.
func (d *Detector) MidPrices(cl domain.ConcentratedLiquidityState, cp domain.ConstantProductState) (MidPrices, error) {
	if err := cl.Validate(); err != nil {
		return MidPrices{}, err
	}
	if err := cp.Validate(); err != nil {
		return MidPrices{}, err
	}
	uni, err := amm.RatioFromConcentratedLiquidity(cl.SqrtPriceX96, d.cfg.Token0Decimals, d.cfg.Token1Decimals)
	if err != nil {
		return MidPrices{}, err
	}
	sushi, err := amm.RatioFromConstantProduct(cp.Reserve0, cp.Reserve1, d.cfg.Token0Decimals, d.cfg.Token1Decimals)
	if err != nil {
		return MidPrices{}, err
	}
	return MidPrices{Concentrated: uni, ConstantProduct: sushi}, nil
}

// Edges computes the fee-adjusted edge of both directions.
func (d *Detector) Edges(cl domain.ConcentratedLiquidityState, cp domain.ConstantProductState) (Edges, error) {
	prices, err := d.MidPrices(cl, cp)
	if err != nil {
		return Edges{}, err
	}
	clFeePpm := int64(cl.FeePpm)

	uniToSushi, err := EdgeBpsAfterFees(prices.ConstantProduct, prices.Concentrated, d.cpFeePpm, clFeePpm)
	if err != nil {
		return Edges{}, fmt.Errorf("uni to sushi: %w", err)
	}
	sushiToUni, err := EdgeBpsAfterFees(prices.Concentrated, prices.ConstantProduct, clFeePpm, d.cpFeePpm)
	if err != nil {
		return Edges{}, fmt.Errorf("sushi to uni: %w", err)
	}
	return Edges{UniToSushi: uniToSushi, SushiToUni: sushiToUni}, nil
}

// Detect returns a Candidate for the better direction when it clears
// MinEdgeBps, or nil when neither does. UNI_TO_SUSHI wins exact ties; the
// choice is arbitrary but keeps the result independent of argument order.
//
// snapshotBlock is recorded on the candidate; zero selects the lower of the
// two states' block numbers.
func (d *Detector) Detect(cl domain.ConcentratedLiquidityState, cp domain.ConstantProductState, snapshotBlock uint64) (*domain.Candidate, error) {
	edges, err := d.Edges(cl, cp)
	if err != nil {
		return nil, err
	}

	var (
		direction domain.Direction
		edge      int64
		venues    []domain.Venue
		pools     []string
	)
	switch {
	case edges.UniToSushi >= d.cfg.MinEdgeBps && edges.UniToSushi >= edges.SushiToUni:
		direction, edge = domain.DirectionUniToSushi, edges.UniToSushi
		venues = []domain.Venue{domain.VenueUniV3, domain.VenueSushiV2}
		pools = []string{strings.ToLower(cl.PoolAddress), strings.ToLower(cp.PoolAddress)}
	case edges.SushiToUni >= d.cfg.MinEdgeBps:
		direction, edge = domain.DirectionSushiToUni, edges.SushiToUni
		venues = []domain.Venue{domain.VenueSushiV2, domain.VenueUniV3}
		pools = []string{strings.ToLower(cp.PoolAddress), strings.ToLower(cl.PoolAddress)}
	default:
		return nil, nil
	}

	if snapshotBlock == 0 {
		snapshotBlock = min(cl.BlockNumber, cp.BlockNumber)
	}

	return &domain.Candidate{
		ID:             d.newID(),
		Chain:          d.cfg.Chain,
		TokenIn:        d.cfg.Token1,
		TokenOut:       d.cfg.Token1,
		TokenPath:      []string{d.cfg.Token1, d.cfg.Token0, d.cfg.Token1},
		VenuePath:      venues,
		PoolPath:       pools,
		Direction:      direction,
		RoughEdgeBps:   edge,
		RoughProfitUSD: d.cfg.NotionalUSD * float64(edge) / domain.MaxFeeBps,
		SnapshotBlock:  snapshotBlock,
		CreatedAt:      d.now(),
	}, nil
}
