package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/grantayeye/gamma-budget-planner/internal/catalog"
	"github.com/grantayeye/gamma-budget-planner/internal/common"
	"github.com/grantayeye/gamma-budget-planner/internal/quote"
)

// Handler exposes the budget CRUD, save, and version endpoints.
type Handler struct {
	service *Service
	quotes  *quote.Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	Quotes  *quote.Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service, quotes: cfg.Quotes}
}

type createRequest struct {
	ClientName  string                 `json:"clientName"`
	BuilderName string                 `json:"builderName"`
	Selection   quote.SelectionPayload `json:"selection"`
}

type saveRequest struct {
	Selection quote.SelectionPayload `json:"selection"`
	Note      string                 `json:"note"`
	Pin       bool                   `json:"pin"`
}

type customizeRequest struct {
	Catalog catalog.Catalog `json:"catalog"`
}

// Create handles POST /api/v1/budgets.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "invalid budget payload", nil)
		return
	}
	result, err := h.quotes.Compute(r.Context(), req.Selection)
	if err != nil {
		h.writeError(w, err)
		return
	}
	b := &Budget{
		ClientName:   req.ClientName,
		BuilderName:  req.BuilderName,
		PropertyType: req.Selection.PropertyType,
	}
	state := State{Selection: result.Selection, Totals: result.Totals}
	if err := h.service.Create(r.Context(), b, state); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": b})
}

// Get handles GET /api/v1/budgets/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.budgetID(w, r)
	if !ok {
		return
	}
	b, err := h.service.Store.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": b})
}

// Save handles PUT /api/v1/budgets/{id}.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	id, ok := h.budgetID(w, r)
	if !ok {
		return
	}
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "invalid save payload", nil)
		return
	}
	b, err := h.service.Store.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	req.Selection.PropertyType = b.PropertyType

	result, err := h.price(r.Context(), b, req.Selection)
	if err != nil {
		h.writeError(w, err)
		return
	}
	state := State{Selection: result.Selection, Totals: result.Totals}
	outcome, err := h.service.Save(r.Context(), id, state, req.Note, req.Pin)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": outcome})
}

// Versions handles GET /api/v1/budgets/{id}/versions.
func (h *Handler) Versions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.budgetID(w, r)
	if !ok {
		return
	}
	versions, err := h.service.Store.ListVersions(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": versions})
}

// Restore handles POST /api/v1/budgets/{id}/versions/{number}/restore.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := h.budgetID(w, r)
	if !ok {
		return
	}
	number, err := strconv.ParseInt(chi.URLParam(r, "number"), 10, 32)
	if err != nil || number < 1 {
		common.JSONError(w, http.StatusBadRequest, "INVALID_VERSION", "version number must be a positive integer", nil)
		return
	}
	outcome, err := h.service.Restore(r.Context(), id, int32(number))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": outcome})
}

// List handles GET /api/v1/admin/budgets.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := common.ParsePagination(r, 20)
	if limit > 100 {
		limit = 100
	}
	budgets, total, err := h.service.Store.List(r.Context(), limit, (page-1)*limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       budgets,
		"pagination": common.Pagination{Page: page, PerPage: limit, TotalItems: int(total)},
	})
}

// Delete handles DELETE /api/v1/admin/budgets/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.budgetID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Customize handles POST /api/v1/admin/budgets/{id}/customize. It stores a
// per-budget catalog override and resets the version history, so it sits
// behind the admin gate.
func (h *Handler) Customize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.budgetID(w, r)
	if !ok {
		return
	}
	var req customizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "invalid customize payload", nil)
		return
	}
	b, err := h.service.Store.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	req.Catalog.PropertyType = b.PropertyType
	if err := req.Catalog.Validate(); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_CATALOG", err.Error(), nil)
		return
	}

	var current State
	if err := json.Unmarshal(b.CurrentState, &current); err != nil {
		h.writeError(w, err)
		return
	}
	result := h.quotes.PriceSelection(req.Catalog, current.Selection)
	state := State{Selection: result.Selection, Totals: result.Totals}

	rawCatalog, err := json.Marshal(req.Catalog)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.Customize(r.Context(), id, rawCatalog, state); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": state})
}

// price validates and prices a selection against the budget's effective
// catalog, honoring a customized override when one is stored.
func (h *Handler) price(ctx context.Context, b *Budget, payload quote.SelectionPayload) (quote.Result, error) {
	if len(b.CustomCatalog) == 0 {
		return h.quotes.Compute(ctx, payload)
	}
	if err := h.quotes.ValidatePayload(payload); err != nil {
		return quote.Result{}, err
	}
	var custom catalog.Catalog
	if err := json.Unmarshal(b.CustomCatalog, &custom); err != nil {
		return quote.Result{}, fmt.Errorf("decoding customized catalog: %w", err)
	}
	return h.quotes.Price(custom, payload), nil
}

func (h *Handler) budgetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", "budget id must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBudgetNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "budget not found", nil)
		return
	case errors.Is(err, ErrVersionNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "budget version not found", nil)
		return
	case errors.Is(err, ErrVersionConflict):
		common.JSONError(w, http.StatusConflict, "CONFLICT", "budget was modified concurrently, retry the save", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := appErr.Code
		if code == "" {
			code = "INTERNAL"
		}
		message := appErr.Message
		if message == "" {
			message = "internal error"
		}
		common.JSONError(w, status, code, message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
