package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// PlanReader is the read side of domain.PlanStore.
type PlanReader interface {
	Get(ctx context.Context, id string) (domain.Plan, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Plan, error)
}

// PlanHandler serves stored plans. Amounts are rendered as decimal strings.
type PlanHandler struct {
	store  PlanReader
	logger *slog.Logger
}

func NewPlanHandler(store PlanReader, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{store: store, logger: logger.With(slog.String("handler", "plans"))}
}

type planList struct {
	Plans []domain.Plan `json:"plans"`
}

// ListRecent returns the newest plans first.
// GET /api/plans/recent?limit=50
func (h *PlanHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	plans, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		writeStoreError(w, r, h.logger, err)
		return
	}
	if plans == nil {
		plans = []domain.Plan{}
	}
	writeJSON(w, http.StatusOK, planList{Plans: plans})
}

// Get returns one plan by trace id.
// GET /api/plans/{id}
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
