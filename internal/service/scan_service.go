package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/atomicnexus/internal/amm"
	"github.com/alanyoungcy/atomicnexus/internal/arbitrage"
	"github.com/alanyoungcy/atomicnexus/internal/domain"
	"github.com/alanyoungcy/atomicnexus/internal/metrics"
	"github.com/alanyoungcy/atomicnexus/internal/optimizer"
)

// Outcome classifies how a scan cycle ended.
type Outcome string

const (
	OutcomeBusy        Outcome = "busy"
	OutcomeLocked      Outcome = "locked"
	OutcomeNoHead      Outcome = "no_head"
	OutcomeStaleHead   Outcome = "stale_head"
	OutcomeNoState     Outcome = "no_state"
	OutcomeNoCandidate Outcome = "no_candidate"
	OutcomeCandidate   Outcome = "candidate"
	OutcomePlan        Outcome = "plan"
	OutcomeError       Outcome = "error"
)

// PlanNotifier is told about every plan the scanner builds.
type PlanNotifier interface {
	PlanBuilt(ctx context.Context, c domain.Candidate, p domain.Plan) error
}

// ScanConfig holds the scanner's tunables.
type ScanConfig struct {
	Chain        domain.Chain
	PoolAddress  string
	PairAddress  string
	PollInterval time.Duration
	// LockTTL enables the distributed scan lock when > 0.
	LockTTL time.Duration
}

// ScanService polls the cached pool states, runs the detector and, when an
// optimizer is configured, sizes every candidate into a plan.
type ScanService struct {
	cfg        ScanConfig
	cache      domain.PoolStateCache
	heads      domain.HeadTracker
	candidates domain.CandidateStore
	plans      domain.PlanStore
	bus        domain.SignalBus
	locks      domain.LockManager
	detector   *arbitrage.Detector
	optimizer  *optimizer.Optimizer
	notifier   PlanNotifier
	metrics    *metrics.Metrics
	logger     *slog.Logger

	inFlight atomic.Bool
	lastHead atomic.Uint64
}

// ScanDeps are the collaborators of a ScanService. Locks, Optimizer, Notifier
// and Metrics are optional.
type ScanDeps struct {
	Cache      domain.PoolStateCache
	Heads      domain.HeadTracker
	Candidates domain.CandidateStore
	Plans      domain.PlanStore
	Bus        domain.SignalBus
	Locks      domain.LockManager
	Detector   *arbitrage.Detector
	Optimizer  *optimizer.Optimizer
	Notifier   PlanNotifier
	Metrics    *metrics.Metrics
}

// NewScanService creates a ScanService.
func NewScanService(cfg ScanConfig, deps ScanDeps, logger *slog.Logger) *ScanService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &ScanService{
		cfg:        cfg,
		cache:      deps.Cache,
		heads:      deps.Heads,
		candidates: deps.Candidates,
		plans:      deps.Plans,
		bus:        deps.Bus,
		locks:      deps.Locks,
		detector:   deps.Detector,
		optimizer:  deps.Optimizer,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger.With(slog.String("component", "scanner")),
	}
}

// Run executes a cycle immediately and then once per poll interval until ctx
// is cancelled.
func (s *ScanService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scanner started",
		slog.Duration("poll_interval", s.cfg.PollInterval),
		slog.Bool("optimize", s.optimizer != nil),
	)
	s.Cycle(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle runs one detection pass. At most one cycle runs at a time; an
// overlapping call returns OutcomeBusy without doing anything. Failures are
// logged and reported as OutcomeError.
func (s *ScanService) Cycle(ctx context.Context) Outcome {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.ScanOutcome(string(OutcomeBusy))
		return OutcomeBusy
	}
	defer s.inFlight.Store(false)

	start := time.Now()
	outcome, err := s.cycle(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scan cycle failed", slog.String("error", err.Error()))
		outcome = OutcomeError
	}
	s.metrics.ScanOutcome(string(outcome))
	s.metrics.ObserveScan(time.Since(start).Seconds())
	return outcome
}

func (s *ScanService) cycle(ctx context.Context) (Outcome, error) {
	if s.locks != nil && s.cfg.LockTTL > 0 {
		unlock, err := s.locks.Acquire(ctx, "scan:"+string(s.cfg.Chain), s.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "scan lock held elsewhere")
			return OutcomeLocked, nil
		}
		if err != nil {
			return OutcomeError, fmt.Errorf("scanner: acquire lock: %w", err)
		}
		defer unlock()
	}

	head, ok, err := s.heads.LastHead(ctx, s.cfg.Chain)
	if err != nil {
		return OutcomeError, fmt.Errorf("scanner: read head: %w", err)
	}
	if !ok {
		s.logger.WarnContext(ctx, "no head block yet, is ingestion running?")
		return OutcomeNoHead, nil
	}
	if last := s.lastHead.Load(); last != 0 && head <= last {
		return OutcomeStaleHead, nil
	}

	cl, err := s.cache.GetConcentrated(ctx, s.cfg.Chain, domain.VenueUniV3, s.cfg.PoolAddress)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "missing pool state", slog.String("pool", s.cfg.PoolAddress))
		return OutcomeNoState, nil
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("scanner: read pool state: %w", err)
	}
	cp, err := s.cache.GetConstantProduct(ctx, s.cfg.Chain, domain.VenueSushiV2, s.cfg.PairAddress)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "missing pair state", slog.String("pair", s.cfg.PairAddress))
		return OutcomeNoState, nil
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("scanner: read pair state: %w", err)
	}
	s.lastHead.Store(head)

	prices, err := s.detector.MidPrices(cl, cp)
	if err != nil {
		return OutcomeError, fmt.Errorf("scanner: mid prices: %w", err)
	}
	edges, err := s.detector.Edges(cl, cp)
	if err != nil {
		return OutcomeError, fmt.Errorf("scanner: edges: %w", err)
	}
	s.metrics.Edge(string(domain.DirectionUniToSushi), edges.UniToSushi)
	s.metrics.Edge(string(domain.DirectionSushiToUni), edges.SushiToUni)
	s.logger.InfoContext(ctx, "mid prices",
		slog.Uint64("block", head),
		slog.String("uni_mid", amm.Display(prices.Concentrated, 6)),
		slog.String("sushi_mid", amm.Display(prices.ConstantProduct, 6)),
		slog.Int64("uni_to_sushi_bps", edges.UniToSushi),
		slog.Int64("sushi_to_uni_bps", edges.SushiToUni),
	)

	c, err := s.detector.Detect(cl, cp, head)
	if err != nil {
		return OutcomeError, fmt.Errorf("scanner: detect: %w", err)
	}
	if c == nil {
		return OutcomeNoCandidate, nil
	}
	if err := s.recordCandidate(ctx, *c); err != nil {
		return OutcomeError, err
	}

	if s.optimizer == nil {
		return OutcomeCandidate, nil
	}
	plan, err := s.optimizer.Optimize(*c, cl, cp)
	if err != nil {
		s.logger.WarnContext(ctx, "optimizer failed",
			slog.String("trace_id", c.ID),
			slog.String("error", err.Error()),
		)
		return OutcomeCandidate, nil
	}
	if plan == nil {
		s.logger.InfoContext(ctx, "no profitable size", slog.String("trace_id", c.ID))
		return OutcomeCandidate, nil
	}
	if err := s.recordPlan(ctx, *c, *plan); err != nil {
		return OutcomeError, err
	}
	return OutcomePlan, nil
}

func (s *ScanService) recordCandidate(ctx context.Context, c domain.Candidate) error {
	if err := s.candidates.Insert(ctx, c); err != nil {
		return fmt.Errorf("scanner: insert candidate: %w", err)
	}
	s.publish(ctx, domain.ChannelCandidates, c)
	s.metrics.CandidateDetected(string(c.Direction))

	s.logger.InfoContext(ctx, "candidate",
		slog.String("trace_id", c.ID),
		slog.String("direction", string(c.Direction)),
		slog.Int64("edge_bps", c.RoughEdgeBps),
		slog.Float64("rough_profit_usd", c.RoughProfitUSD),
		slog.Uint64("block", c.SnapshotBlock),
	)
	return nil
}

func (s *ScanService) recordPlan(ctx context.Context, c domain.Candidate, p domain.Plan) error {
	if err := s.plans.Insert(ctx, p); err != nil {
		return fmt.Errorf("scanner: insert plan: %w", err)
	}
	s.publish(ctx, domain.ChannelPlans, p)
	s.metrics.PlanBuilt(p.ExpectedNetProfitUSD)

	s.logger.InfoContext(ctx, "plan",
		slog.String("trace_id", p.ID),
		slog.String("amount_in", p.AmountIn.String()),
		slog.String("expected_out", p.ExpectedAmountOut.String()),
		slog.String("min_out", p.Constraints.MinAmountOut.String()),
		slog.Float64("expected_profit", p.ExpectedNetProfitUSD),
	)

	if s.notifier != nil {
		if err := s.notifier.PlanBuilt(ctx, c, p); err != nil {
			s.logger.WarnContext(ctx, "notify plan", slog.String("error", err.Error()))
		}
	}
	return nil
}

// publish is best effort: the row is already stored.
func (s *ScanService) publish(ctx context.Context, channel string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal event", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish event", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}
