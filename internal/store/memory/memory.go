// Package memory implements the domain stores and caches in process memory.
// The dryrun mode runs on it, and package tests use it in place of redis and
// postgres.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

func poolKey(chain domain.Chain, venue domain.Venue, pool string) string {
	return fmt.Sprintf("%s:%s:%s", chain, venue, strings.ToLower(pool))
}

// PoolStateCache is an in-memory domain.PoolStateCache.
type PoolStateCache struct {
	mu     sync.RWMutex
	states map[string]domain.PoolState
}

// NewPoolStateCache creates an empty cache.
func NewPoolStateCache() *PoolStateCache {
	return &PoolStateCache{states: make(map[string]domain.PoolState)}
}

// GetConcentrated returns a copy of the stored concentrated-liquidity state.
func (c *PoolStateCache) GetConcentrated(_ context.Context, chain domain.Chain, venue domain.Venue, pool string) (domain.ConcentratedLiquidityState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.states[poolKey(chain, venue, pool)]
	if !ok {
		return domain.ConcentratedLiquidityState{}, fmt.Errorf("memory: pool state %s: %w", pool, domain.ErrNotFound)
	}
	cl, ok := s.(domain.ConcentratedLiquidityState)
	if !ok {
		return domain.ConcentratedLiquidityState{}, fmt.Errorf("%w: %s is not a concentrated-liquidity pool", domain.ErrStaleOrInvalidState, pool)
	}
	return cl.Clone(), nil
}

// GetConstantProduct returns a copy of the stored constant-product state.
func (c *PoolStateCache) GetConstantProduct(_ context.Context, chain domain.Chain, venue domain.Venue, pool string) (domain.ConstantProductState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.states[poolKey(chain, venue, pool)]
	if !ok {
		return domain.ConstantProductState{}, fmt.Errorf("memory: pool state %s: %w", pool, domain.ErrNotFound)
	}
	cp, ok := s.(domain.ConstantProductState)
	if !ok {
		return domain.ConstantProductState{}, fmt.Errorf("%w: %s is not a constant-product pair", domain.ErrStaleOrInvalidState, pool)
	}
	return cp.Clone(), nil
}

// Put stores a copy of state.
func (c *PoolStateCache) Put(_ context.Context, state domain.PoolState) error {
	var stored domain.PoolState
	switch s := state.(type) {
	case domain.ConcentratedLiquidityState:
		stored = s.Clone()
	case domain.ConstantProductState:
		stored = s.Clone()
	default:
		return fmt.Errorf("%w: unknown pool state %T", domain.ErrInvalidParameter, state)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[poolKey(state.ChainID(), state.VenueID(), state.Address())] = stored
	return nil
}

// HeadTracker is an in-memory domain.HeadTracker.
type HeadTracker struct {
	mu    sync.RWMutex
	heads map[domain.Chain]uint64
}

// NewHeadTracker creates a tracker with no heads.
func NewHeadTracker() *HeadTracker {
	return &HeadTracker{heads: make(map[domain.Chain]uint64)}
}

// LastHead returns the last block set for chain; ok is false when none was.
func (h *HeadTracker) LastHead(_ context.Context, chain domain.Chain) (uint64, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	block, ok := h.heads[chain]
	return block, ok, nil
}

// SetHead records block as the latest head of chain.
func (h *HeadTracker) SetHead(_ context.Context, chain domain.Chain, block uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.heads[chain] = block
	return nil
}

// CandidateStore is an in-memory domain.CandidateStore.
type CandidateStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.Candidate
	order []string
}

// NewCandidateStore creates an empty store.
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{byID: make(map[string]domain.Candidate)}
}

// Insert stores c unless its ID is already present.
func (s *CandidateStore) Insert(_ context.Context, c domain.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; ok {
		return nil
	}
	s.byID[c.ID] = c.Clone()
	s.order = append(s.order, c.ID)
	return nil
}

// Get returns the candidate with id, or an error wrapping domain.ErrNotFound.
func (s *CandidateStore) Get(_ context.Context, id string) (domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return domain.Candidate{}, fmt.Errorf("memory: candidate %s: %w", id, domain.ErrNotFound)
	}
	return c.Clone(), nil
}

// ListRecent returns up to limit candidates, newest first.
func (s *CandidateStore) ListRecent(_ context.Context, limit int) ([]domain.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Candidate, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.byID[s.order[i]].Clone())
	}
	return out, nil
}

// ListBefore returns candidates created before the cutoff ordered by
// (CreatedAt, ID). A positive limit caps the result; otherwise every match is
// returned.
func (s *CandidateStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.Candidate, error) {
	s.mu.RLock()
	var out []domain.Candidate
	for _, id := range s.order {
		if c := s.byID[id]; c.CreatedAt.Before(before) {
			out = append(out, c.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.Candidate) int {
		return compareCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return capRows(out, limit), nil
}

// DeleteIDs removes the candidates with the given IDs and reports how many
// existed.
func (s *CandidateStore) DeleteIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteIDs(s.byID, &s.order, ids), nil
}

// PlanStore is an in-memory domain.PlanStore.
type PlanStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.Plan
	order []string
}

// NewPlanStore creates an empty store.
func NewPlanStore() *PlanStore {
	return &PlanStore{byID: make(map[string]domain.Plan)}
}

// Insert stores p unless its ID is already present.
func (s *PlanStore) Insert(_ context.Context, p domain.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; ok {
		return nil
	}
	s.byID[p.ID] = p
	s.order = append(s.order, p.ID)
	return nil
}

// Get returns the plan with id, or an error wrapping domain.ErrNotFound.
func (s *PlanStore) Get(_ context.Context, id string) (domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return domain.Plan{}, fmt.Errorf("memory: plan %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// ListRecent returns up to limit plans, newest first.
func (s *PlanStore) ListRecent(_ context.Context, limit int) ([]domain.Plan, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Plan, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.byID[s.order[i]])
	}
	return out, nil
}

// ListBefore returns plans created before the cutoff ordered by
// (CreatedAt, ID). A positive limit caps the result; otherwise every match is
// returned.
func (s *PlanStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.Plan, error) {
	s.mu.RLock()
	var out []domain.Plan
	for _, id := range s.order {
		if p := s.byID[id]; p.CreatedAt.Before(before) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.Plan) int {
		return compareCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return capRows(out, limit), nil
}

// DeleteIDs removes the plans with the given IDs and reports how many
// existed.
func (s *PlanStore) DeleteIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteIDs(s.byID, &s.order, ids), nil
}

func compareCreated(at time.Time, aID string, bt time.Time, bID string) int {
	if c := at.Compare(bt); c != 0 {
		return c
	}
	return strings.Compare(aID, bID)
}

func capRows[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

func deleteIDs[T any](byID map[string]T, order *[]string, ids []string) int64 {
	var deleted int64
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			delete(byID, id)
			deleted++
		}
	}
	*order = slices.DeleteFunc(*order, func(id string) bool {
		_, ok := byID[id]
		return !ok
	})
	return deleted
}

// DexEventStore is an in-memory domain.DexEventStore.
type DexEventStore struct {
	mu      sync.RWMutex
	events  []domain.DexEvent
	seen    map[string]struct{}
	updates []domain.PoolState
}

// NewDexEventStore creates an empty store.
func NewDexEventStore() *DexEventStore {
	return &DexEventStore{seen: make(map[string]struct{})}
}

// InsertEvent stores ev unless its (tx hash, log index) is already present.
func (s *DexEventStore) InsertEvent(_ context.Context, ev domain.DexEvent) error {
	meta := ev.Meta()
	key := fmt.Sprintf("%s:%d", strings.ToLower(meta.TxHash), meta.LogIndex)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return nil
	}
	s.seen[key] = struct{}{}
	s.events = append(s.events, ev)
	return nil
}

// InsertPoolStateUpdate appends state to the pool-state history.
func (s *DexEventStore) InsertPoolStateUpdate(_ context.Context, state domain.PoolState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, state)
	return nil
}

// Events returns the stored events in insertion order.
func (s *DexEventStore) Events() []domain.DexEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// Updates returns the stored pool-state history in insertion order.
func (s *DexEventStore) Updates() []domain.PoolState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.updates)
}

// SignalBus is an in-process domain.SignalBus. Publish never blocks: a
// subscriber whose buffer is full misses the message.
type SignalBus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewSignalBus creates a bus with no subscribers.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string][]chan []byte)}
}

// Publish delivers a copy of payload to every current subscriber of channel.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- slices.Clone(payload):
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that is closed when ctx is done.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.subs[channel] = slices.DeleteFunc(b.subs[channel], func(c chan []byte) bool { return c == ch })
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// LockManager is an in-process domain.LockManager. Expired locks are taken
// over by the next Acquire.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]time.Time
	token map[string]int
	next  int
	now   func() time.Time
}

// NewLockManager creates a manager with no locks held.
func NewLockManager() *LockManager {
	return &LockManager{
		held:  make(map[string]time.Time),
		token: make(map[string]int),
		now:   time.Now,
	}
}

// Acquire takes key for ttl. A live lock returns an error wrapping
// domain.ErrLockHeld. The returned unlock releases only this holder's lock and
// is safe to call more than once.
func (l *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, ok := l.held[key]; ok && now.Before(expiry) {
		return nil, fmt.Errorf("memory: lock %s: %w", key, domain.ErrLockHeld)
	}
	l.next++
	tok := l.next
	l.held[key] = now.Add(ttl)
	l.token[key] = tok

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.token[key] == tok {
				delete(l.held, key)
				delete(l.token, key)
			}
		})
	}, nil
}

// Compile-time interface checks.
var (
	_ domain.PoolStateCache = (*PoolStateCache)(nil)
	_ domain.HeadTracker    = (*HeadTracker)(nil)
	_ domain.CandidateStore = (*CandidateStore)(nil)
	_ domain.PlanStore      = (*PlanStore)(nil)
	_ domain.DexEventStore  = (*DexEventStore)(nil)
	_ domain.SignalBus      = (*SignalBus)(nil)
	_ domain.LockManager    = (*LockManager)(nil)
)
