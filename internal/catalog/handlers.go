package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grantayeye/gamma-budget-planner/internal/common"
)

// Handler exposes the public catalog read endpoint and the admin edit
// endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Get handles GET /api/v1/catalog/{propertyType}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	propertyType := chi.URLParam(r, "propertyType")
	if !ValidPropertyType(propertyType) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown property type", nil)
		return
	}
	cat, err := h.service.Get(r.Context(), propertyType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cat})
}

// UpsertCategory handles PUT /api/v1/admin/catalog/{propertyType}/categories/{id}.
func (h *Handler) UpsertCategory(w http.ResponseWriter, r *http.Request) {
	propertyType := chi.URLParam(r, "propertyType")
	if !ValidPropertyType(propertyType) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown property type", nil)
		return
	}
	var cat Category
	if err := json.NewDecoder(r.Body).Decode(&cat); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "invalid category payload", nil)
		return
	}
	cat.ID = chi.URLParam(r, "id")
	if err := h.service.UpsertCategory(r.Context(), propertyType, cat); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cat})
}

// DeleteCategory handles DELETE /api/v1/admin/catalog/{propertyType}/categories/{id}.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	propertyType := chi.URLParam(r, "propertyType")
	if err := h.service.DeleteCategory(r.Context(), propertyType, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertExtra handles PUT /api/v1/admin/catalog/{propertyType}/extras/{id}.
func (h *Handler) UpsertExtra(w http.ResponseWriter, r *http.Request) {
	propertyType := chi.URLParam(r, "propertyType")
	if !ValidPropertyType(propertyType) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown property type", nil)
		return
	}
	var ex Extra
	if err := json.NewDecoder(r.Body).Decode(&ex); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "invalid extra payload", nil)
		return
	}
	ex.ID = chi.URLParam(r, "id")
	if err := h.service.UpsertExtra(r.Context(), propertyType, ex); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ex})
}

// DeleteExtra handles DELETE /api/v1/admin/catalog/{propertyType}/extras/{id}.
func (h *Handler) DeleteExtra(w http.ResponseWriter, r *http.Request) {
	propertyType := chi.URLParam(r, "propertyType")
	if err := h.service.DeleteExtra(r.Context(), propertyType, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "catalog entry not found", nil)
		return
	case errors.Is(err, ErrInvalidCatalog):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_CATALOG", err.Error(), nil)
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
