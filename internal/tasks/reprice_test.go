package tasks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/grantayeye/gamma-budget-planner/internal/budget"
	"github.com/grantayeye/gamma-budget-planner/internal/catalog"
	"github.com/grantayeye/gamma-budget-planner/internal/pricing"
	"github.com/grantayeye/gamma-budget-planner/internal/quote"
)

type fakeBudgetStore struct {
	budget.Store
	budgets []budget.Budget
	updated map[uuid.UUID]json.RawMessage
}

func (f *fakeBudgetStore) List(_ context.Context, limit, offset int) ([]budget.Budget, int64, error) {
	if offset >= len(f.budgets) {
		return nil, int64(len(f.budgets)), nil
	}
	end := offset + limit
	if end > len(f.budgets) {
		end = len(f.budgets)
	}
	return append([]budget.Budget(nil), f.budgets[offset:end]...), int64(len(f.budgets)), nil
}

func (f *fakeBudgetStore) UpdateCurrentState(_ context.Context, id uuid.UUID, state json.RawMessage) error {
	if f.updated == nil {
		f.updated = map[uuid.UUID]json.RawMessage{}
	}
	f.updated[id] = state
	return nil
}

type fixedCatalogs struct {
	cat catalog.Catalog
}

func (f fixedCatalogs) Get(_ context.Context, propertyType string) (catalog.Catalog, error) {
	cat := f.cat
	cat.PropertyType = propertyType
	return cat, nil
}

func mustState(t *testing.T, tier string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(budget.State{
		Selection: pricing.Selection{
			Tiers:        map[string]string{"network": tier},
			HomeSize:     4000,
			PropertyType: "residential",
		},
		Totals: pricing.Totals{Subtotal: 1},
	})
	require.NoError(t, err)
	return raw
}

func TestRepriceAll(t *testing.T) {
	cat := catalog.Catalog{
		Categories: []catalog.Category{{
			ID:        "network",
			Name:      "Network & WiFi",
			SizeScale: 0.8,
			Tiers: map[string]catalog.TierOffering{
				catalog.TierStandard: {Price: 6000},
			},
		}},
	}
	plain := budget.Budget{ID: uuid.New(), PropertyType: "residential", CurrentState: mustState(t, "standard")}
	customized := budget.Budget{
		ID:            uuid.New(),
		PropertyType:  "residential",
		CurrentState:  mustState(t, "standard"),
		CustomCatalog: json.RawMessage(`{"propertyType":"residential"}`),
	}
	condo := budget.Budget{ID: uuid.New(), PropertyType: "condo", CurrentState: mustState(t, "standard")}

	store := &fakeBudgetStore{budgets: []budget.Budget{plain, customized, condo}}
	handler := &RepriceHandler{
		Budgets:  store,
		Catalogs: fixedCatalogs{cat: cat},
		Quotes:   quote.NewService(quote.ServiceConfig{Catalogs: fixedCatalogs{cat: cat}}),
		Log:      zerolog.Nop(),
	}

	task, err := NewRepriceAllTask("residential")
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(context.Background(), task))

	require.Len(t, store.updated, 1)
	raw, ok := store.updated[plain.ID]
	require.True(t, ok, "only the plain residential budget should be repriced")

	var state budget.State
	require.NoError(t, json.Unmarshal(raw, &state))
	require.Equal(t, int64(6000), state.Totals.Subtotal)
	require.Equal(t, "standard", state.Selection.Tiers["network"])
}
