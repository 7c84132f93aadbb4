package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// CandidateStore implements domain.CandidateStore. The full candidate is kept
// in the data column; the other columns exist for querying.
type CandidateStore struct {
	pool *pgxpool.Pool
}

// NewCandidateStore creates a CandidateStore backed by the given pool.
func NewCandidateStore(pool *pgxpool.Pool) *CandidateStore {
	return &CandidateStore{pool: pool}
}

// Insert stores c. Inserting an ID that already exists is a no-op.
func (s *CandidateStore) Insert(ctx context.Context, c domain.Candidate) error {
	const query = `
		INSERT INTO candidates (
			trace_id, chain, direction, snapshot_block,
			rough_edge_bps, rough_profit_usd, data, created_at
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::jsonb, $8)
		ON CONFLICT (trace_id) DO NOTHING`

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("postgres: encode candidate %s: %w", c.ID, err)
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := s.pool.Exec(ctx, query,
		c.ID, string(c.Chain), string(c.Direction), int64(c.SnapshotBlock),
		c.RoughEdgeBps, c.RoughProfitUSD, data, createdAt,
	); err != nil {
		return fmt.Errorf("postgres: insert candidate %s: %w", c.ID, err)
	}
	return nil
}

// Get returns the candidate with the given ID or domain.ErrNotFound.
func (s *CandidateStore) Get(ctx context.Context, id string) (domain.Candidate, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM candidates WHERE trace_id = $1::uuid`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Candidate{}, domain.ErrNotFound
		}
		return domain.Candidate{}, fmt.Errorf("postgres: get candidate %s: %w", id, err)
	}
	var c domain.Candidate
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Candidate{}, fmt.Errorf("postgres: decode candidate %s: %w", id, err)
	}
	return c, nil
}

// ListRecent returns up to limit candidates, newest first.
func (s *CandidateStore) ListRecent(ctx context.Context, limit int) ([]domain.Candidate, error) {
	query := `SELECT data FROM candidates ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.list(ctx, "list recent candidates", query, args...)
}

// ListBefore returns up to limit candidates created before the cutoff,
// oldest first.
func (s *CandidateStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Candidate, error) {
	query := `SELECT data FROM candidates WHERE created_at < $1 ORDER BY created_at ASC, id ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.list(ctx, "list candidates before", query, args...)
}

// DeleteIDs removes the candidates with the given trace ids.
func (s *CandidateStore) DeleteIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM candidates WHERE trace_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete %d candidates: %w", len(ids), err)
	}
	return tag.RowsAffected(), nil
}

func (s *CandidateStore) list(ctx context.Context, op, query string, args ...any) ([]domain.Candidate, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan candidate: %w", err)
		}
		var c domain.Candidate
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("postgres: decode candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.CandidateStore = (*CandidateStore)(nil)
