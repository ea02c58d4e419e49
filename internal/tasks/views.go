package tasks

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/grantayeye/gamma-budget-planner/internal/budget"
)

// ViewFlusher folds accumulated share-view counts from Redis into Postgres.
// The worker runs it on a ticker.
type ViewFlusher struct {
	Views   *budget.ViewCounter
	Budgets budget.Store
	Log     zerolog.Logger
}

// Flush drains the counter once. Counts for budgets deleted since the views
// accrued are dropped.
func (f *ViewFlusher) Flush(ctx context.Context) error {
	counts, err := f.Views.Drain(ctx)
	if err != nil {
		return err
	}
	for id, delta := range counts {
		if err := f.Budgets.AddViews(ctx, id, delta); err != nil {
			if errors.Is(err, budget.ErrBudgetNotFound) {
				continue
			}
			f.Log.Error().Err(err).Str("budget_id", id.String()).Msg("failed to flush view count")
		}
	}
	return nil
}
