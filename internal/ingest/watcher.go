package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"

	"github.com/alanyoungcy/atomicnexus/internal/amm"
	"github.com/alanyoungcy/atomicnexus/internal/domain"
	"github.com/alanyoungcy/atomicnexus/internal/metrics"
)

// ChainClient is the subset of *ethclient.Client the watcher uses.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	Close()
}

// Dialer opens a ChainClient.
type Dialer func(ctx context.Context, url string) (ChainClient, error)

// DialEthclient dials url with go-ethereum's client.
func DialEthclient(ctx context.Context, url string) (ChainClient, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Chain          domain.Chain
	RPCURL         string
	PoolAddress    string // concentrated-liquidity pool
	PairAddress    string // constant-product pair
	Token0         string
	Token1         string
	Token0Decimals int
	Token1Decimals int

	CallTimeout       time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	DedupSize         int
	DedupTTL          time.Duration

	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

func (c *WatcherConfig) applyDefaults() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 10 * time.Minute
	}
	if c.BreakerMaxFailures == 0 {
		c.BreakerMaxFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// Watcher keeps the pool-state cache and head tracker current. It bootstraps
// both pools over RPC, then applies every Swap and Sync log it receives and
// records each new head.
type Watcher struct {
	cfg     WatcherConfig
	dial    Dialer
	cache   domain.PoolStateCache
	heads   domain.HeadTracker
	events  domain.DexEventStore
	metrics *metrics.Metrics
	logger  *slog.Logger

	dedup   *Dedup
	breaker *gobreaker.CircuitBreaker[[]byte]
	pool    common.Address
	pair    common.Address
	feePpm  uint32
}

// NewWatcher creates a Watcher. events and m may be nil.
func NewWatcher(
	cfg WatcherConfig,
	dial Dialer,
	cache domain.PoolStateCache,
	heads domain.HeadTracker,
	events domain.DexEventStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Watcher {
	cfg.applyDefaults()
	if dial == nil {
		dial = DialEthclient
	}
	w := &Watcher{
		cfg:     cfg,
		dial:    dial,
		cache:   cache,
		heads:   heads,
		events:  events,
		metrics: m,
		logger:  logger.With(slog.String("component", "ingest")),
		dedup:   NewDedup(cfg.DedupSize, cfg.DedupTTL),
		pool:    common.HexToAddress(cfg.PoolAddress),
		pair:    common.HexToAddress(cfg.PairAddress),
	}
	w.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "rpc-bootstrap",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			w.metrics.Breaker(name, int(to))
		},
	})
	return w
}

// Run bootstraps and follows the chain until ctx is cancelled. Dropped
// connections are retried with exponential backoff; an on-chain config
// mismatch ends the run.
func (w *Watcher) Run(ctx context.Context) error {
	delay := w.cfg.ReconnectDelay
	for {
		connected, err := w.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, domain.ErrConfigMismatch) {
			return err
		}
		if connected {
			delay = w.cfg.ReconnectDelay
		}
		w.metrics.Reconnected()
		w.logger.WarnContext(ctx, "rpc connection lost, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, w.cfg.MaxReconnectDelay)
	}
}

// runConnection reports whether bootstrap succeeded before the connection
// ended.
func (w *Watcher) runConnection(ctx context.Context) (bool, error) {
	client, err := w.dial(ctx, w.cfg.RPCURL)
	if err != nil {
		w.metrics.IngestError("dial")
		return false, fmt.Errorf("ingest: dial: %w", err)
	}
	defer client.Close()

	if err := w.bootstrap(ctx, client); err != nil {
		w.metrics.IngestError("bootstrap")
		return false, err
	}

	logs := make(chan types.Log, 256)
	logSub, err := client.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{w.pool, w.pair},
		Topics:    [][]common.Hash{{SwapTopic, SyncTopic}},
	}, logs)
	if err != nil {
		w.metrics.IngestError("subscribe")
		return true, fmt.Errorf("ingest: subscribe logs: %w", err)
	}
	defer logSub.Unsubscribe()

	heads := make(chan *types.Header, 16)
	headSub, err := client.SubscribeNewHead(ctx, heads)
	if err != nil {
		w.metrics.IngestError("subscribe")
		return true, fmt.Errorf("ingest: subscribe heads: %w", err)
	}
	defer headSub.Unsubscribe()

	w.logger.InfoContext(ctx, "subscribed",
		slog.String("pool", w.cfg.PoolAddress),
		slog.String("pair", w.cfg.PairAddress),
	)

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err := <-logSub.Err():
			return true, fmt.Errorf("ingest: log subscription: %w", err)
		case err := <-headSub.Err():
			return true, fmt.Errorf("ingest: head subscription: %w", err)
		case lg := <-logs:
			w.handleLog(ctx, lg)
		case h := <-heads:
			w.handleHead(ctx, h)
		}
	}
}

// bootstrap checks the pools against the configured tokens and seeds the
// cache with their current state.
func (w *Watcher) bootstrap(ctx context.Context, client ChainClient) error {
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("ingest: head block: %w", err)
	}

	for _, target := range []struct {
		label string
		addr  common.Address
		abi   abi.ABI
	}{
		{"pool", w.pool, concentratedPoolABI},
		{"pair", w.pair, constantProductPairABI},
	} {
		if err := w.checkToken(ctx, client, target.label, target.addr, target.abi, "token0", w.cfg.Token0); err != nil {
			return err
		}
		if err := w.checkToken(ctx, client, target.label, target.addr, target.abi, "token1", w.cfg.Token1); err != nil {
			return err
		}
	}

	if err := w.checkDecimals(ctx, client, w.cfg.Token0, w.cfg.Token0Decimals); err != nil {
		return err
	}
	if err := w.checkDecimals(ctx, client, w.cfg.Token1, w.cfg.Token1Decimals); err != nil {
		return err
	}

	feeOut, err := w.call(ctx, client, w.pool, concentratedPoolABI, "fee")
	if err != nil {
		return err
	}
	fee, ok := feeOut[0].(*big.Int)
	if !ok || !fee.IsUint64() || fee.Uint64() > domain.MaxFeePpm {
		return fmt.Errorf("%w: pool fee %v", domain.ErrStaleOrInvalidState, feeOut[0])
	}
	w.feePpm = uint32(fee.Uint64())

	slot0, err := w.call(ctx, client, w.pool, concentratedPoolABI, "slot0")
	if err != nil {
		return err
	}
	sqrtPrice, ok1 := slot0[0].(*big.Int)
	tick, ok2 := slot0[1].(*big.Int)
	if !ok1 || !ok2 || !tick.IsInt64() {
		return fmt.Errorf("%w: unexpected slot0 values", domain.ErrStaleOrInvalidState)
	}
	liqOut, err := w.call(ctx, client, w.pool, concentratedPoolABI, "liquidity")
	if err != nil {
		return err
	}
	liquidity, ok := liqOut[0].(*big.Int)
	if !ok {
		return fmt.Errorf("%w: unexpected liquidity value", domain.ErrStaleOrInvalidState)
	}
	reserves, err := w.call(ctx, client, w.pair, constantProductPairABI, "getReserves")
	if err != nil {
		return err
	}
	reserve0, ok1 := reserves[0].(*big.Int)
	reserve1, ok2 := reserves[1].(*big.Int)
	if !ok1 || !ok2 {
		return fmt.Errorf("%w: unexpected reserves", domain.ErrStaleOrInvalidState)
	}

	cl, err := domain.NewConcentratedLiquidityState(w.cfg.Chain, domain.VenueUniV3, w.cfg.PoolAddress,
		sqrtPrice, int32(tick.Int64()), liquidity, w.feePpm, head)
	if err != nil {
		return fmt.Errorf("ingest: bootstrap pool: %w", err)
	}
	cp, err := domain.NewConstantProductState(w.cfg.Chain, domain.VenueSushiV2, w.cfg.PairAddress,
		reserve0, reserve1, head)
	if err != nil {
		return fmt.Errorf("ingest: bootstrap pair: %w", err)
	}

	for _, s := range []domain.PoolState{cl, cp} {
		if err := w.cache.Put(ctx, s); err != nil {
			return fmt.Errorf("ingest: cache bootstrap state: %w", err)
		}
		w.recordUpdate(ctx, s)
	}
	if err := w.heads.SetHead(ctx, w.cfg.Chain, head); err != nil {
		return fmt.Errorf("ingest: set head: %w", err)
	}
	w.metrics.Head(head)

	w.logger.InfoContext(ctx, "bootstrapped",
		slog.Uint64("block", head),
		slog.Uint64("fee_ppm", uint64(w.feePpm)),
		slog.String("sqrt_price_x96", sqrtPrice.String()),
		slog.String("liquidity", liquidity.String()),
		slog.String("reserve0", reserve0.String()),
		slog.String("reserve1", reserve1.String()),
	)
	return nil
}

func (w *Watcher) checkToken(ctx context.Context, client ChainClient, label string, addr common.Address, contract abi.ABI, method, want string) error {
	out, err := w.call(ctx, client, addr, contract, method)
	if err != nil {
		return err
	}
	got, ok := out[0].(common.Address)
	if !ok {
		return fmt.Errorf("%w: %s %s is not an address", domain.ErrStaleOrInvalidState, label, method)
	}
	if !strings.EqualFold(got.Hex(), want) {
		return fmt.Errorf("%w: %s %s is %s, configured %s", domain.ErrConfigMismatch, label, method, strings.ToLower(got.Hex()), want)
	}
	return nil
}

func (w *Watcher) checkDecimals(ctx context.Context, client ChainClient, token string, want int) error {
	addr := common.HexToAddress(token)
	out, err := w.call(ctx, client, addr, erc20ABI, "decimals")
	if err != nil {
		return err
	}
	got, ok := out[0].(uint8)
	if !ok {
		return fmt.Errorf("%w: %s decimals", domain.ErrStaleOrInvalidState, token)
	}
	if int(got) != want {
		return fmt.Errorf("%w: %s has %d decimals, configured %d", domain.ErrConfigMismatch, token, got, want)
	}

	symbol := "?"
	if out, err := w.call(ctx, client, addr, erc20ABI, "symbol"); err == nil {
		if s, ok := out[0].(string); ok {
			symbol = s
		}
	}
	w.logger.InfoContext(ctx, "token", slog.String("address", token), slog.String("symbol", symbol), slog.Int("decimals", int(got)))
	return nil
}

// call runs a view method through the circuit breaker and unpacks its outputs.
func (w *Watcher) call(ctx context.Context, client ChainClient, to common.Address, contract abi.ABI, method string) ([]interface{}, error) {
	data, err := contract.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("ingest: pack %s: %w", method, err)
	}
	raw, err := w.breaker.Execute(func() ([]byte, error) {
		callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
		defer cancel()
		return client.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: call %s on %s: %w", method, strings.ToLower(to.Hex()), err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("ingest: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ingest: %s returned nothing", method)
	}
	return out, nil
}

func (w *Watcher) handleLog(ctx context.Context, lg types.Log) {
	if w.dedup.IsDuplicate(strings.ToLower(lg.TxHash.Hex()), lg.Index) {
		w.logger.DebugContext(ctx, "duplicate log", slog.String("tx", lg.TxHash.Hex()), slog.Uint64("index", uint64(lg.Index)))
		return
	}

	var (
		ev    domain.DexEvent
		state domain.PoolState
		err   error
	)
	switch lg.Address {
	case w.pool:
		var swap domain.SwapEvent
		if swap, err = DecodeSwapLog(lg, w.cfg.Chain, w.cfg.PoolAddress); err == nil {
			ev = swap
			state, err = ApplySwap(swap, w.feePpm)
		}
	case w.pair:
		var sync domain.SyncEvent
		if sync, err = DecodeSyncLog(lg, w.cfg.Chain, w.cfg.PairAddress); err == nil {
			ev = sync
			state, err = ApplySync(sync)
		}
	default:
		err = fmt.Errorf("%w: unexpected emitter %s", domain.ErrDecodeInvalidLog, lg.Address.Hex())
	}
	if err != nil {
		w.metrics.IngestError("decode")
		w.logger.WarnContext(ctx, "skip log",
			slog.String("tx", lg.TxHash.Hex()),
			slog.Uint64("index", uint64(lg.Index)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := w.cache.Put(ctx, state); err != nil {
		w.metrics.IngestError("cache")
		w.logger.ErrorContext(ctx, "cache pool state", slog.String("error", err.Error()))
		return
	}
	if w.events != nil {
		if err := w.events.InsertEvent(ctx, ev); err != nil {
			w.metrics.IngestError("store")
			w.logger.WarnContext(ctx, "store dex event", slog.String("error", err.Error()))
		}
	}
	w.recordUpdate(ctx, state)
	w.metrics.IngestEvent(string(ev.Type()))

	meta := ev.Meta()
	w.logger.InfoContext(ctx, "pool updated",
		slog.String("type", string(ev.Type())),
		slog.String("trace_id", meta.TraceID),
		slog.String("pool", meta.PoolAddress),
		slog.Uint64("block", meta.BlockNumber),
		slog.String("tx", meta.TxHash),
	)
}

func (w *Watcher) handleHead(ctx context.Context, h *types.Header) {
	if h == nil || h.Number == nil {
		return
	}
	block := h.Number.Uint64()
	if err := w.heads.SetHead(ctx, w.cfg.Chain, block); err != nil {
		w.metrics.IngestError("head")
		w.logger.WarnContext(ctx, "set head", slog.String("error", err.Error()))
		return
	}
	w.metrics.Head(block)

	cl, err := w.cache.GetConcentrated(ctx, w.cfg.Chain, domain.VenueUniV3, w.cfg.PoolAddress)
	if err != nil {
		w.logger.DebugContext(ctx, "head without pool state", slog.Uint64("block", block), slog.String("error", err.Error()))
		return
	}
	cp, err := w.cache.GetConstantProduct(ctx, w.cfg.Chain, domain.VenueSushiV2, w.cfg.PairAddress)
	if err != nil {
		w.logger.DebugContext(ctx, "head without pair state", slog.Uint64("block", block), slog.String("error", err.Error()))
		return
	}

	uniMid, err := amm.RatioFromConcentratedLiquidity(cl.SqrtPriceX96, w.cfg.Token0Decimals, w.cfg.Token1Decimals)
	if err != nil {
		return
	}
	sushiMid, err := amm.RatioFromConstantProduct(cp.Reserve0, cp.Reserve1, w.cfg.Token0Decimals, w.cfg.Token1Decimals)
	if err != nil {
		return
	}
	w.logger.InfoContext(ctx, "head",
		slog.Uint64("block", block),
		slog.String("uni_mid", amm.Display(uniMid, 6)),
		slog.String("sushi_mid", amm.Display(sushiMid, 6)),
	)
}

func (w *Watcher) recordUpdate(ctx context.Context, s domain.PoolState) {
	if w.events == nil {
		return
	}
	if err := w.events.InsertPoolStateUpdate(ctx, s); err != nil {
		w.metrics.IngestError("store")
		w.logger.WarnContext(ctx, "store pool state update", slog.String("error", err.Error()))
	}
}

func errString(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}
