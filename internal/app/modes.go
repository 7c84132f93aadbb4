package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
	"github.com/alanyoungcy/atomicnexus/internal/ingest"
	"github.com/alanyoungcy/atomicnexus/internal/notify"
	"github.com/alanyoungcy/atomicnexus/internal/pipeline"
	"github.com/alanyoungcy/atomicnexus/internal/server"
	"github.com/alanyoungcy/atomicnexus/internal/server/ws"
	"github.com/alanyoungcy/atomicnexus/internal/service"
)

const shutdownTimeout = 10 * time.Second

// IngestMode follows the chain and keeps the pool-state cache current.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")
	return a.newWatcher(deps).Run(ctx)
}

// ScanMode polls the cache for candidates and plans.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")
	a.notifyStartup(ctx, deps)
	return a.newScanner(deps).Run(ctx)
}

// ServerMode serves the read API and the live websocket feed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode moves old candidates and plans to object storage on the
// configured cron schedule.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	return a.newArchiveJob(deps).RunCron(ctx, a.cfg.Archive.Cron)
}

// FullMode runs the scanner plus whichever of ingest, server and archive are
// enabled. The first component to fail stops the rest.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Bool("ingest", a.cfg.Ingest.Enabled),
		slog.Bool("server", a.cfg.Server.Enabled),
		slog.Bool("archive", a.cfg.Archive.Enabled),
	)
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Ingest.Enabled {
		watcher := a.newWatcher(deps)
		g.Go(func() error { return watcher.Run(ctx) })
	}

	scanner := a.newScanner(deps)
	g.Go(func() error { return scanner.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		job := a.newArchiveJob(deps)
		g.Go(func() error { return job.RunCron(ctx, a.cfg.Archive.Cron) })
	}

	a.notifyStartup(ctx, deps)
	return g.Wait()
}

func (a *App) newWatcher(deps *Dependencies) *ingest.Watcher {
	c := a.cfg
	return ingest.NewWatcher(ingest.WatcherConfig{
		Chain:              domain.Chain(c.Chain.Name),
		RPCURL:             c.Chain.RPCURL,
		PoolAddress:        c.Chain.PoolAddress,
		PairAddress:        c.Chain.PairAddress,
		Token0:             c.Chain.Token0Address,
		Token1:             c.Chain.Token1Address,
		Token0Decimals:     c.Chain.Token0Decimals,
		Token1Decimals:     c.Chain.Token1Decimals,
		CallTimeout:        c.Ingest.CallTimeout.Duration,
		ReconnectDelay:     c.Ingest.ReconnectDelay.Duration,
		MaxReconnectDelay:  c.Ingest.MaxReconnectDelay.Duration,
		DedupSize:          c.Ingest.DedupSize,
		DedupTTL:           c.Ingest.DedupTTL.Duration,
		BreakerMaxFailures: c.Ingest.BreakerMaxFailures,
		BreakerTimeout:     c.Ingest.BreakerTimeout.Duration,
	}, ingest.DialEthclient, deps.Cache, deps.Heads, deps.Events, deps.Metrics, a.logger)
}

func (a *App) newScanner(deps *Dependencies) *service.ScanService {
	return service.NewScanService(service.ScanConfig{
		Chain:        domain.Chain(a.cfg.Chain.Name),
		PoolAddress:  a.cfg.Chain.PoolAddress,
		PairAddress:  a.cfg.Chain.PairAddress,
		PollInterval: a.cfg.Scanner.PollInterval.Duration,
		LockTTL:      a.cfg.Scanner.LockTTL.Duration,
	}, service.ScanDeps{
		Cache:      deps.Cache,
		Heads:      deps.Heads,
		Candidates: deps.Candidates,
		Plans:      deps.Plans,
		Bus:        deps.Bus,
		Locks:      deps.Locks,
		Detector:   deps.Detector,
		Optimizer:  deps.Optimizer,
		Notifier:   deps.Notifier,
		Metrics:    deps.Metrics,
	}, a.logger)
}

func (a *App) newArchiveJob(deps *Dependencies) *pipeline.Archiver {
	return pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
}

// startHTTPServer adds the API server and its websocket hub to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Bus, a.cfg.Mode, a.logger)
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Deps{
		Candidates: deps.Candidates,
		Plans:      deps.Plans,
		Metrics:    deps.Metrics,
		Limiter:    deps.Limiter,
		Hub:        hub,
	}, a.logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx, shutdownTimeout) })
}

func (a *App) notifyStartup(ctx context.Context, deps *Dependencies) {
	if !deps.Notifier.Enabled(notify.EventStartup) {
		return
	}
	msg := notify.Message{
		Title: "atomicnexus started",
		Body:  fmt.Sprintf("mode %s on %s", a.cfg.Mode, a.cfg.Chain.Name),
	}
	if err := deps.Notifier.Notify(ctx, notify.EventStartup, msg); err != nil {
		a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
	}
}
