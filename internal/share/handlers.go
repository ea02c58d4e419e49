package share

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/grantayeye/gamma-budget-planner/internal/budget"
	"github.com/grantayeye/gamma-budget-planner/internal/common"
	"github.com/grantayeye/gamma-budget-planner/internal/obs"
)

// Pinner pins the latest version of a budget before it leaves the building.
// Implemented by the budget service.
type Pinner interface {
	Pin(ctx context.Context, id uuid.UUID, note string) (*budget.Version, error)
}

// ViewBumper records a share-link view. Implemented by the Redis view
// counter; a nil bumper disables counting.
type ViewBumper interface {
	Bump(ctx context.Context, budgetID uuid.UUID) error
}

// Handler exposes share-link minting and resolution.
type Handler struct {
	signer  *Signer
	budgets budget.Store
	pinner  Pinner
	views   ViewBumper
	baseURL string
	log     zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Signer  *Signer
	Budgets budget.Store
	Pinner  Pinner
	Views   ViewBumper
	BaseURL string
	Logger  zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		signer:  cfg.Signer,
		budgets: cfg.Budgets,
		pinner:  cfg.Pinner,
		views:   cfg.Views,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		log:     cfg.Logger,
	}
}

type shareResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Version   int32     `json:"versionNumber"`
}

// Create handles POST /api/v1/budgets/{id}/share. Sharing pins the latest
// version first so the recipient's view can always be restored later.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", "budget id must be a UUID", nil)
		return
	}
	pinned, err := h.pinner.Pin(r.Context(), id, "")
	if err != nil {
		h.writeError(w, err)
		return
	}
	token, expiresAt, err := h.signer.Mint(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": shareResponse{
		Token:     token,
		URL:       h.baseURL + "/api/v1/s/" + token,
		ExpiresAt: expiresAt,
		Version:   pinned.VersionNumber,
	}})
}

// Resolve handles GET /api/v1/s/{token}: the public, read-only budget view.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := h.signer.Verify(chi.URLParam(r, "token"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "share link is invalid or expired", nil)
		return
	}
	b, err := h.budgets.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.views != nil {
		if err := h.views.Bump(r.Context(), id); err != nil {
			h.log.Warn().Err(err).Str("budget_id", id.String()).Msg("failed to bump view count")
		}
	}
	if obs.ShareViewsTotal != nil {
		obs.ShareViewsTotal.Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": b})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, budget.ErrBudgetNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "budget not found", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
