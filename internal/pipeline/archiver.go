// Package pipeline runs the periodic background jobs that sit beside the
// live ingest and scan loops.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// ArchiveResult counts the rows one run moved to cold storage.
type ArchiveResult struct {
	Cutoff     time.Time
	Candidates int64
	Plans      int64
}

// Archiver moves candidates and plans older than the retention window from
// the database to object storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiver creates an Archiver keeping retentionDays of history in the
// database.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archive_job")),
		now:           time.Now,
	}
}

// Run performs one archive pass. Plans are still attempted when candidates
// fail; the errors are joined.
func (a *Archiver) Run(ctx context.Context) (ArchiveResult, error) {
	if a.retentionDays <= 0 {
		return ArchiveResult{}, fmt.Errorf("archive: retention days must be positive, got %d", a.retentionDays)
	}
	res := ArchiveResult{Cutoff: a.now().UTC().AddDate(0, 0, -a.retentionDays)}
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", res.Cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	var errs []error
	n, err := a.blobArchiver.ArchiveCandidates(ctx, res.Cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("archiving candidates before %v: %w", res.Cutoff, err))
	}
	res.Candidates = n

	n, err = a.blobArchiver.ArchivePlans(ctx, res.Cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("archiving plans before %v: %w", res.Cutoff, err))
	}
	res.Plans = n

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("candidates_archived", res.Candidates),
		slog.Int64("plans_archived", res.Plans),
	)
	return res, errors.Join(errs...)
}

// RunCron runs the archiver on a standard 5-field cron schedule (UTC) until
// ctx is cancelled. Failed runs are logged and retried at the next trigger.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextRun(sched, a.now().UTC())
		if err != nil {
			return fmt.Errorf("cron expression %q: %w", cronExpr, err)
		}

		wait := next.Sub(a.now())
		a.logger.InfoContext(ctx, "archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.InfoContext(ctx, "archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// nextRun returns the first trigger strictly after t.
func nextRun(sched cron.Schedule, t time.Time) (time.Time, error) {
	next := sched.Next(t)
	if next.IsZero() {
		return time.Time{}, errors.New("schedule never fires")
	}
	return next, nil
}
