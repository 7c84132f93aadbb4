package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
)

// CandidateReader is the read side of domain.CandidateStore.
type CandidateReader interface {
	Get(ctx context.Context, id string) (domain.Candidate, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Candidate, error)
}

// CandidateHandler serves stored candidates.
type CandidateHandler struct {
	store  CandidateReader
	logger *slog.Logger
}

func NewCandidateHandler(store CandidateReader, logger *slog.Logger) *CandidateHandler {
	return &CandidateHandler{store: store, logger: logger.With(slog.String("handler", "candidates"))}
}

type candidateList struct {
	Candidates []domain.Candidate `json:"candidates"`
}

// ListRecent returns the newest candidates first.
// GET /api/candidates/recent?limit=50
func (h *CandidateHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	cands, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		writeStoreError(w, r, h.logger, err)
		return
	}
	if cands == nil {
		cands = []domain.Candidate{}
	}
	writeJSON(w, http.StatusOK, candidateList{Candidates: cands})
}

// Get returns one candidate by trace id.
// GET /api/candidates/{id}
func (h *CandidateHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
