package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/grantayeye/gamma-budget-planner/internal/budget"
	"github.com/grantayeye/gamma-budget-planner/internal/catalog"
	"github.com/grantayeye/gamma-budget-planner/internal/obs"
	"github.com/grantayeye/gamma-budget-planner/internal/quote"
)

const repricePageSize = 200

// CatalogProvider resolves the current shared catalog for a property type.
type CatalogProvider interface {
	Get(ctx context.Context, propertyType string) (catalog.Catalog, error)
}

// RepriceHandler recomputes stored budget totals after a catalog edit. Only
// the derived current state changes; version history is never touched, so
// historical quotes keep the prices the client actually saw.
type RepriceHandler struct {
	Budgets  budget.Store
	Catalogs CatalogProvider
	Quotes   *quote.Service
	Log      zerolog.Logger
}

// ProcessTask implements asynq.Handler for TypeRepriceAll.
func (h *RepriceHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload RepricePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decoding reprice payload: %w", err)
	}
	cat, err := h.Catalogs.Get(ctx, payload.PropertyType)
	if err != nil {
		return fmt.Errorf("loading catalog for reprice: %w", err)
	}

	var repriced, skipped, failed int
	for offset := 0; ; offset += repricePageSize {
		page, _, err := h.Budgets.List(ctx, repricePageSize, offset)
		if err != nil {
			return fmt.Errorf("listing budgets for reprice: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for i := range page {
			b := &page[i]
			if b.PropertyType != payload.PropertyType {
				continue
			}
			// Customized budgets price against their own frozen catalog.
			if len(b.CustomCatalog) > 0 {
				skipped++
				continue
			}
			if err := h.repriceOne(ctx, b, cat); err != nil {
				failed++
				h.Log.Error().Err(err).Str("budget_id", b.ID.String()).Msg("reprice failed")
				continue
			}
			repriced++
		}
		if len(page) < repricePageSize {
			break
		}
	}

	if obs.RepriceTotal != nil {
		obs.RepriceTotal.WithLabelValues("repriced").Add(float64(repriced))
		obs.RepriceTotal.WithLabelValues("skipped").Add(float64(skipped))
		obs.RepriceTotal.WithLabelValues("failed").Add(float64(failed))
	}
	h.Log.Info().
		Str("property_type", payload.PropertyType).
		Int("repriced", repriced).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("reprice run complete")
	if failed > 0 {
		return fmt.Errorf("reprice left %d budgets stale", failed)
	}
	return nil
}

func (h *RepriceHandler) repriceOne(ctx context.Context, b *budget.Budget, cat catalog.Catalog) error {
	var state budget.State
	if err := json.Unmarshal(b.CurrentState, &state); err != nil {
		return fmt.Errorf("decoding current state: %w", err)
	}
	result := h.Quotes.PriceSelection(cat, state.Selection)
	next := budget.State{Selection: result.Selection, Totals: result.Totals}
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding repriced state: %w", err)
	}
	return h.Budgets.UpdateCurrentState(ctx, b.ID, raw)
}
