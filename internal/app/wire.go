package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/atomicnexus/internal/arbitrage"
	s3blob "github.com/alanyoungcy/atomicnexus/internal/blob/s3"
	"github.com/alanyoungcy/atomicnexus/internal/cache/redis"
	"github.com/alanyoungcy/atomicnexus/internal/config"
	"github.com/alanyoungcy/atomicnexus/internal/domain"
	"github.com/alanyoungcy/atomicnexus/internal/metrics"
	"github.com/alanyoungcy/atomicnexus/internal/notify"
	"github.com/alanyoungcy/atomicnexus/internal/optimizer"
	"github.com/alanyoungcy/atomicnexus/internal/store/memory"
	"github.com/alanyoungcy/atomicnexus/internal/store/postgres"
)

// Dependencies bundles what the modes run on. Fields a mode does not need are
// left nil by Wire.
type Dependencies struct {
	// Stores
	Candidates domain.CandidateStore
	Plans      domain.PlanStore
	Events     domain.DexEventStore

	// Caches
	Cache   domain.PoolStateCache
	Heads   domain.HeadTracker
	Bus     domain.SignalBus
	Locks   domain.LockManager
	Limiter domain.RateLimiter

	// Blob storage
	Archiver domain.Archiver

	Detector  *arbitrage.Detector
	Optimizer *optimizer.Optimizer
	Notifier  *notify.Notifier
	Metrics   *metrics.Metrics
}

func needsPostgres(cfg *config.Config) bool {
	switch cfg.Mode {
	case "ingest", "scan", "server", "archive", "full":
		return true
	}
	return false
}

func needsRedis(cfg *config.Config) bool {
	switch cfg.Mode {
	case "ingest", "scan", "server", "full":
		return true
	}
	return false
}

func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "archive" || (cfg.Mode == "full" && cfg.Archive.Enabled)
}

// Wire builds the dependencies for cfg.Mode and returns a cleanup function
// that releases them in reverse order. dryrun runs entirely in memory.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Metrics: metrics.New(nil)}

	var err error
	deps.Detector, deps.Optimizer, err = buildEngine(cfg)
	if err != nil {
		return fail(err)
	}

	if cfg.Mode == "dryrun" {
		deps.Candidates = memory.NewCandidateStore()
		deps.Plans = memory.NewPlanStore()
		deps.Events = memory.NewDexEventStore()
		deps.Cache = memory.NewPoolStateCache()
		deps.Heads = memory.NewHeadTracker()
		deps.Bus = memory.NewSignalBus()
		deps.Locks = memory.NewLockManager()
	}

	// --- PostgreSQL ---
	var pgStores struct {
		candidates *postgres.CandidateStore
		plans      *postgres.PlanStore
	}
	if needsPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		pgStores.candidates = postgres.NewCandidateStore(pool)
		pgStores.plans = postgres.NewPlanStore(pool)
		deps.Candidates = pgStores.candidates
		deps.Plans = pgStores.plans
		deps.Events = postgres.NewDexEventStore(pool)
	}

	// --- Redis ---
	if needsRedis(cfg) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cache = redis.NewPoolStateCache(redisClient)
		deps.Heads = redis.NewHeadTracker(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := s3Client.Health(ctx); err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			pgStores.candidates,
			pgStores.plans,
			s3blob.ArchiverConfig{
				MaxRows: cfg.Archive.MaxRows,
				Stat:    s3blob.NewReader(s3Client),
				Metrics: deps.Metrics,
			},
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Chain.Token1Decimals, cfg.Chain.Token1Symbol, logger)

	return deps, cleanup, nil
}

// buildEngine creates the detector and, when optimization is enabled, the
// optimizer.
func buildEngine(cfg *config.Config) (*arbitrage.Detector, *optimizer.Optimizer, error) {
	detector, err := arbitrage.NewDetector(arbitrage.DetectorConfig{
		Chain:                 domain.Chain(cfg.Chain.Name),
		Token0:                cfg.Chain.Token0Address,
		Token1:                cfg.Chain.Token1Address,
		Token0Decimals:        cfg.Chain.Token0Decimals,
		Token1Decimals:        cfg.Chain.Token1Decimals,
		ConstantProductFeeBps: cfg.Chain.ConstantProductFeeBps,
		MinEdgeBps:            cfg.Scanner.MinEdgeBps,
		NotionalUSD:           cfg.Scanner.NotionalUSD,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: detector: %w", err)
	}
	if !cfg.Scanner.Optimize {
		return detector, nil, nil
	}

	lo, hi, err := cfg.Scanner.SearchBounds(cfg.Chain.Token1Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: optimizer: %w", err)
	}
	opt := optimizer.New(optimizer.Config{
		Token0:                cfg.Chain.Token0Address,
		Token1:                cfg.Chain.Token1Address,
		Token1Decimals:        cfg.Chain.Token1Decimals,
		ConstantProductFeeBps: cfg.Chain.ConstantProductFeeBps,
		MinAmountIn:           lo,
		MaxAmountIn:           hi,
		Iterations:            cfg.Scanner.Iterations,
		MaxSlippageBps:        cfg.Scanner.MaxSlippageBps,
		TTLBlocks:             cfg.Scanner.TTLBlocks,
	})
	return detector, opt, nil
}
