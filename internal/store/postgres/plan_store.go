package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// PlanStore implements domain.PlanStore. Amounts are also stored as
// NUMERIC(78,0) columns so they can be aggregated in SQL.
type PlanStore struct {
	pool *pgxpool.Pool
}

// NewPlanStore creates a PlanStore backed by the given pool.
func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{pool: pool}
}

// Insert stores p. Inserting an ID that already exists is a no-op.
func (s *PlanStore) Insert(ctx context.Context, p domain.Plan) error {
	const query = `
		INSERT INTO plans (
			trace_id, chain, amount_in_wei, expected_amount_out_wei, min_out_wei,
			expected_net_profit_usd, max_slippage_bps, ttl_blocks, snapshot_block,
			data, created_at
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)
		ON CONFLICT (trace_id) DO NOTHING`

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres: encode plan %s: %w", p.ID, err)
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := s.pool.Exec(ctx, query,
		p.ID, string(p.Chain),
		numeric(p.AmountIn), numeric(p.ExpectedAmountOut), numeric(p.Constraints.MinAmountOut),
		p.ExpectedNetProfitUSD, p.Constraints.MaxSlippageBps, int64(p.Constraints.TTLBlocks), int64(p.SnapshotBlock),
		data, createdAt,
	); err != nil {
		return fmt.Errorf("postgres: insert plan %s: %w", p.ID, err)
	}
	return nil
}

// Get returns the plan with the given ID or domain.ErrNotFound.
func (s *PlanStore) Get(ctx context.Context, id string) (domain.Plan, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM plans WHERE trace_id = $1::uuid`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Plan{}, domain.ErrNotFound
		}
		return domain.Plan{}, fmt.Errorf("postgres: get plan %s: %w", id, err)
	}
	var p domain.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Plan{}, fmt.Errorf("postgres: decode plan %s: %w", id, err)
	}
	return p, nil
}

// ListRecent returns up to limit plans, newest first.
func (s *PlanStore) ListRecent(ctx context.Context, limit int) ([]domain.Plan, error) {
	query := `SELECT data FROM plans ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.list(ctx, "list recent plans", query, args...)
}

// ListBefore returns up to limit plans created before the cutoff, oldest
// first.
func (s *PlanStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Plan, error) {
	query := `SELECT data FROM plans WHERE created_at < $1 ORDER BY created_at ASC, id ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.list(ctx, "list plans before", query, args...)
}

// DeleteIDs removes the plans with the given trace ids.
func (s *PlanStore) DeleteIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM plans WHERE trace_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete %d plans: %w", len(ids), err)
	}
	return tag.RowsAffected(), nil
}

func (s *PlanStore) list(ctx context.Context, op, query string, args ...any) ([]domain.Plan, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Plan
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan plan: %w", err)
		}
		var p domain.Plan
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("postgres: decode plan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}

// numeric converts v to an integral NUMERIC. nil becomes SQL NULL.
func numeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Exp: 0, Valid: true}
}

// Compile-time interface check.
var _ domain.PlanStore = (*PlanStore)(nil)
