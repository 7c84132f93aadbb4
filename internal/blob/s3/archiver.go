package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
	"github.com/alanyoungcy/atomicnexus/internal/metrics"
)

// DefaultMaxRows caps how many rows one archive run moves per kind.
const DefaultMaxRows = 50_000

// CandidateArchiveStore is the slice of domain.CandidateStore the archiver
// needs.
type CandidateArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Candidate, error)
	DeleteIDs(ctx context.Context, ids []string) (int64, error)
}

// PlanArchiveStore is the slice of domain.PlanStore the archiver needs.
type PlanArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Plan, error)
	DeleteIDs(ctx context.Context, ids []string) (int64, error)
}

// ObjectStatter reports the stored size of an uploaded object.
type ObjectStatter interface {
	Stat(ctx context.Context, path string) (int64, error)
}

// ArchiverConfig holds the optional knobs of an ArchiveImpl.
type ArchiverConfig struct {
	// MaxRows bounds each kind per run; zero means DefaultMaxRows.
	MaxRows int
	// Stat, when set, is used to confirm an upload before rows are deleted.
	Stat    ObjectStatter
	Metrics *metrics.Metrics
}

// ArchiveImpl implements domain.Archiver. Rows older than the cutoff are
// written as one JSONL object per kind and only deleted from the database
// once the object is stored. Exactly the uploaded rows are deleted, so a run
// that hits the row cap leaves the rest for the next run.
type ArchiveImpl struct {
	writer     domain.BlobWriter
	candidates CandidateArchiveStore
	plans      PlanArchiveStore
	stat       ObjectStatter
	maxRows    int
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates an ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	candidates CandidateArchiveStore,
	plans PlanArchiveStore,
	cfg ArchiverConfig,
	logger *slog.Logger,
) *ArchiveImpl {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	return &ArchiveImpl{
		writer:     writer,
		candidates: candidates,
		plans:      plans,
		stat:       cfg.Stat,
		maxRows:    cfg.MaxRows,
		metrics:    cfg.Metrics,
		logger:     logger.With(slog.String("component", "archiver")),
		now:        time.Now,
	}
}

// ArchiveCandidates moves candidates created before the cutoff to the bucket
// and returns how many rows were deleted.
func (a *ArchiveImpl) ArchiveCandidates(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.candidates.ListBefore(ctx, before, a.maxRows)
	if err != nil {
		return 0, fmt.Errorf("archive candidates: list: %w", err)
	}
	ids := make([]string, len(rows))
	for i, c := range rows {
		ids[i] = c.ID
	}
	return archiveRows(ctx, a, "candidates", rows, ids, a.candidates.DeleteIDs)
}

// ArchivePlans moves plans created before the cutoff to the bucket and
// returns how many rows were deleted.
func (a *ArchiveImpl) ArchivePlans(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.plans.ListBefore(ctx, before, a.maxRows)
	if err != nil {
		return 0, fmt.Errorf("archive plans: list: %w", err)
	}
	ids := make([]string, len(rows))
	for i, p := range rows {
		ids[i] = p.ID
	}
	return archiveRows(ctx, a, "plans", rows, ids, a.plans.DeleteIDs)
}

// archiveRows uploads rows and then deletes ids, which name the same rows.
func archiveRows[T any](
	ctx context.Context,
	a *ArchiveImpl,
	kind string,
	rows []T,
	ids []string,
	deleteIDs func(context.Context, []string) (int64, error),
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	data, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("archive %s: %w", kind, err)
	}

	path := archivePath(kind, a.now())
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("archive %s: upload: %w", kind, err)
	}
	if a.stat != nil {
		size, err := a.stat.Stat(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("archive %s: verify: %w", kind, err)
		}
		if size != int64(len(data)) {
			return 0, fmt.Errorf("archive %s: verify %s: stored %d bytes, wrote %d", kind, path, size, len(data))
		}
	}

	deleted, err := deleteIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("archive %s: delete: %w", kind, err)
	}
	a.metrics.Archived(kind, deleted)
	a.logger.InfoContext(ctx, "archived rows",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Int("uploaded", len(rows)),
		slog.Int64("deleted", deleted),
	)
	return deleted, nil
}

// archivePath is archive/{kind}/{yyyy}/{mm}/{dd}/{unix}.jsonl in UTC.
func archivePath(kind string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("archive/%s/%04d/%02d/%02d/%d.jsonl", kind, at.Year(), int(at.Month()), at.Day(), at.Unix())
}

// marshalJSONL encodes each record on its own line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
