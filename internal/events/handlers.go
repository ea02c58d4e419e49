package events

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/grantayeye/gamma-budget-planner/internal/common"
)

// Handler exposes the admin activity log endpoints.
type Handler struct {
	store EventStore
}

// NewHandler constructs a Handler.
func NewHandler(store EventStore) *Handler {
	return &Handler{store: store}
}

// Recent handles GET /api/v1/admin/events.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 0)
	rows, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// ForBudget handles GET /api/v1/admin/budgets/{id}/events.
func (h *Handler) ForBudget(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", "budget id must be a UUID", nil)
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 0)
	rows, err := h.store.ListByBudget(r.Context(), id, limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
