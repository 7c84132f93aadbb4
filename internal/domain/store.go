package domain

import (
	"context"
	"time"
)

// CandidateStore persists detected candidates. Insert is idempotent on ID.
type CandidateStore interface {
	Insert(ctx context.Context, c Candidate) error
	Get(ctx context.Context, id string) (Candidate, error)
	ListRecent(ctx context.Context, limit int) ([]Candidate, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Candidate, error)
	DeleteIDs(ctx context.Context, ids []string) (int64, error)
}

// PlanStore persists sized plans. Insert is idempotent on ID.
type PlanStore interface {
	Insert(ctx context.Context, p Plan) error
	Get(ctx context.Context, id string) (Plan, error)
	ListRecent(ctx context.Context, limit int) ([]Plan, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Plan, error)
	DeleteIDs(ctx context.Context, ids []string) (int64, error)
}

// DexEventStore persists decoded logs and the pool states they produced.
// InsertEvent is idempotent on (tx hash, log index).
type DexEventStore interface {
	InsertEvent(ctx context.Context, ev DexEvent) error
	InsertPoolStateUpdate(ctx context.Context, state PoolState) error
}
