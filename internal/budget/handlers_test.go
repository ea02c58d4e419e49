package budget_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/grantayeye/gamma-budget-planner/internal/budget"
	"github.com/grantayeye/gamma-budget-planner/internal/catalog"
	"github.com/grantayeye/gamma-budget-planner/internal/quote"
)

func testCatalog() catalog.Catalog {
	return catalog.Catalog{
		PropertyType: "residential",
		Categories: []catalog.Category{
			{
				ID:        "network",
				Name:      "Network & WiFi",
				SizeScale: 0.8,
				Tiers: map[string]catalog.TierOffering{
					catalog.TierStandard: {Price: 5700},
					catalog.TierGood:     {Price: 3500},
					catalog.TierBest:     {Price: 14500},
				},
			},
		},
		Extras: []catalog.Extra{
			{ID: "structured-wiring", Name: "Structured Wiring", Price: 2200},
		},
	}
}

type fixedCatalogs struct {
	requested []string
}

func (f *fixedCatalogs) Get(_ context.Context, propertyType string) (catalog.Catalog, error) {
	f.requested = append(f.requested, propertyType)
	if propertyType != "residential" {
		return catalog.Catalog{}, fmt.Errorf("no catalog for %q", propertyType)
	}
	return testCatalog(), nil
}

type fakeBudgetStore struct {
	budgets  map[uuid.UUID]*budget.Budget
	versions map[uuid.UUID][]budget.Version
}

func newFakeBudgetStore() *fakeBudgetStore {
	return &fakeBudgetStore{
		budgets:  map[uuid.UUID]*budget.Budget{},
		versions: map[uuid.UUID][]budget.Version{},
	}
}

func (s *fakeBudgetStore) Create(_ context.Context, b *budget.Budget, initialState json.RawMessage) error {
	b.ID = uuid.New()
	b.CurrentState = initialState
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	stored := *b
	s.budgets[b.ID] = &stored
	s.versions[b.ID] = []budget.Version{{
		BudgetID:      b.ID,
		VersionNumber: 1,
		State:         initialState,
		Note:          budget.NoteCreated,
		Pinned:        true,
		CreatedAt:     b.CreatedAt,
	}}
	return nil
}

func (s *fakeBudgetStore) Get(_ context.Context, id uuid.UUID) (*budget.Budget, error) {
	b, ok := s.budgets[id]
	if !ok {
		return nil, budget.ErrBudgetNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *fakeBudgetStore) List(_ context.Context, limit, offset int) ([]budget.Budget, int64, error) {
	out := make([]budget.Budget, 0, len(s.budgets))
	for _, b := range s.budgets {
		out = append(out, *b)
	}
	return out, int64(len(out)), nil
}

func (s *fakeBudgetStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.budgets[id]; !ok {
		return budget.ErrBudgetNotFound
	}
	delete(s.budgets, id)
	delete(s.versions, id)
	return nil
}

func (s *fakeBudgetStore) LatestVersion(_ context.Context, budgetID uuid.UUID) (*budget.Version, error) {
	versions := s.versions[budgetID]
	if len(versions) == 0 {
		return nil, budget.ErrBudgetNotFound
	}
	latest := versions[len(versions)-1]
	return &latest, nil
}

func (s *fakeBudgetStore) GetVersion(_ context.Context, budgetID uuid.UUID, number int32) (*budget.Version, error) {
	for _, v := range s.versions[budgetID] {
		if v.VersionNumber == number {
			copied := v
			return &copied, nil
		}
	}
	return nil, budget.ErrVersionNotFound
}

func (s *fakeBudgetStore) ListVersions(_ context.Context, budgetID uuid.UUID) ([]budget.Version, error) {
	return append([]budget.Version(nil), s.versions[budgetID]...), nil
}

func (s *fakeBudgetStore) OverwriteLatest(_ context.Context, budgetID uuid.UUID, number int32, state json.RawMessage, now time.Time) error {
	versions := s.versions[budgetID]
	for i := range versions {
		if versions[i].VersionNumber == number {
			versions[i].State = state
			versions[i].CreatedAt = now
			s.budgets[budgetID].CurrentState = state
			return nil
		}
	}
	return budget.ErrVersionNotFound
}

func (s *fakeBudgetStore) PinLatest(_ context.Context, budgetID uuid.UUID, number int32, note string) error {
	versions := s.versions[budgetID]
	for i := range versions {
		if versions[i].VersionNumber == number {
			versions[i].Pinned = true
			versions[i].Note = note
			return nil
		}
	}
	return budget.ErrVersionNotFound
}

func (s *fakeBudgetStore) Append(_ context.Context, budgetID uuid.UUID, state json.RawMessage, note string, pinned bool) (int32, error) {
	next := int32(len(s.versions[budgetID]) + 1)
	s.versions[budgetID] = append(s.versions[budgetID], budget.Version{
		BudgetID:      budgetID,
		VersionNumber: next,
		State:         state,
		Note:          note,
		Pinned:        pinned,
		CreatedAt:     time.Now(),
	})
	s.budgets[budgetID].CurrentState = state
	return next, nil
}

func (s *fakeBudgetStore) SetCustomCatalog(_ context.Context, budgetID uuid.UUID, customCatalog, state json.RawMessage) error {
	b, ok := s.budgets[budgetID]
	if !ok {
		return budget.ErrBudgetNotFound
	}
	b.CustomCatalog = customCatalog
	b.CurrentState = state
	s.versions[budgetID] = []budget.Version{{
		BudgetID:      budgetID,
		VersionNumber: 1,
		State:         state,
		Note:          budget.NoteCustomized,
		Pinned:        true,
		CreatedAt:     time.Now(),
	}}
	return nil
}

func (s *fakeBudgetStore) UpdateCurrentState(_ context.Context, budgetID uuid.UUID, state json.RawMessage) error {
	b, ok := s.budgets[budgetID]
	if !ok {
		return budget.ErrBudgetNotFound
	}
	b.CurrentState = state
	return nil
}

func (s *fakeBudgetStore) AddViews(_ context.Context, budgetID uuid.UUID, delta int64) error {
	b, ok := s.budgets[budgetID]
	if !ok {
		return budget.ErrBudgetNotFound
	}
	b.ViewCount += delta
	return nil
}

func withParam(t *testing.T, req *http.Request, key, value string) *http.Request {
	t.Helper()
	routeCtx, ok := req.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || routeCtx == nil {
		routeCtx = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	}
	routeCtx.URLParams.Add(key, value)
	return req
}

func newTestHandler(t *testing.T) (*budget.Handler, *fakeBudgetStore, *fixedCatalogs) {
	t.Helper()
	store := newFakeBudgetStore()
	catalogs := &fixedCatalogs{}
	quotes := quote.NewService(quote.ServiceConfig{Catalogs: catalogs})
	service := &budget.Service{Store: store, Window: 15 * time.Minute}
	handler := budget.NewHandler(budget.HandlerConfig{Service: service, Quotes: quotes})
	return handler, store, catalogs
}

func createTestBudget(t *testing.T, handler *budget.Handler, store *fakeBudgetStore) uuid.UUID {
	t.Helper()
	body := []byte(`{"clientName":"Hartley","selection":{"propertyType":"residential","tiers":{"network":"good"}}}`)
	rec := httptest.NewRecorder()
	handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/budgets", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data budget.Budget `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEqual(t, uuid.Nil, resp.Data.ID)
	return resp.Data.ID
}

func TestCreateBudget(t *testing.T) {
	handler, store, _ := newTestHandler(t)
	id := createTestBudget(t, handler, store)

	versions := store.versions[id]
	require.Len(t, versions, 1)
	require.True(t, versions[0].Pinned)
	require.Equal(t, budget.NoteCreated, versions[0].Note)

	var state budget.State
	require.NoError(t, json.Unmarshal(versions[0].State, &state))
	require.Equal(t, int64(3500), state.Totals.Subtotal)
}

func TestSaveAppendsOutsideWindow(t *testing.T) {
	handler, store, _ := newTestHandler(t)
	id := createTestBudget(t, handler, store)
	store.versions[id][0].CreatedAt = time.Now().Add(-16 * time.Minute)

	body := []byte(`{"selection":{"propertyType":"residential","tiers":{"network":"standard"}}}`)
	rec := httptest.NewRecorder()
	req := withParam(t, httptest.NewRequest(http.MethodPut, "/api/v1/budgets/"+id.String(), bytes.NewReader(body)), "id", id.String())
	handler.Save(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data budget.SaveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Data.Created)
	require.Equal(t, int32(2), resp.Data.VersionNumber)
	require.Equal(t, budget.NoteAutoSave, store.versions[id][1].Note)
}

func TestSaveConsolidatesInsideWindow(t *testing.T) {
	handler, store, _ := newTestHandler(t)
	id := createTestBudget(t, handler, store)
	store.versions[id][0].Pinned = false

	body := []byte(`{"selection":{"propertyType":"residential","tiers":{"network":"best"}}}`)
	rec := httptest.NewRecorder()
	req := withParam(t, httptest.NewRequest(http.MethodPut, "/api/v1/budgets/"+id.String(), bytes.NewReader(body)), "id", id.String())
	handler.Save(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data budget.SaveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Data.Created)
	require.True(t, resp.Data.Consolidated)
	require.Len(t, store.versions[id], 1)
}

func TestSaveInheritsBudgetPropertyType(t *testing.T) {
	handler, store, catalogs := newTestHandler(t)
	id := createTestBudget(t, handler, store)
	catalogs.requested = nil

	body := []byte(`{"selection":{"propertyType":"condo","tiers":{"network":"good"}}}`)
	rec := httptest.NewRecorder()
	req := withParam(t, httptest.NewRequest(http.MethodPut, "/api/v1/budgets/"+id.String(), bytes.NewReader(body)), "id", id.String())
	handler.Save(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"residential"}, catalogs.requested)
}

func TestSaveUnknownBudget(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	id := uuid.New()

	body := []byte(`{"selection":{"propertyType":"residential"}}`)
	rec := httptest.NewRecorder()
	req := withParam(t, httptest.NewRequest(http.MethodPut, "/api/v1/budgets/"+id.String(), bytes.NewReader(body)), "id", id.String())
	handler.Save(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestoreAppendsPinnedVersion(t *testing.T) {
	handler, store, _ := newTestHandler(t)
	id := createTestBudget(t, handler, store)
	store.versions[id][0].CreatedAt = time.Now().Add(-time.Hour)

	body := []byte(`{"selection":{"propertyType":"residential","tiers":{"network":"standard"}}}`)
	rec := httptest.NewRecorder()
	req := withParam(t, httptest.NewRequest(http.MethodPut, "/api/v1/budgets/"+id.String(), bytes.NewReader(body)), "id", id.String())
	handler.Save(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = withParam(t, httptest.NewRequest(http.MethodPost, "/api/v1/budgets/"+id.String()+"/versions/1/restore", nil), "id", id.String())
	req = withParam(t, req, "number", "1")
	handler.Restore(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	versions := store.versions[id]
	require.Len(t, versions, 3)
	restored := versions[2]
	require.True(t, restored.Pinned)
	require.Equal(t, "Restored to version 1", restored.Note)
	require.JSONEq(t, string(versions[0].State), string(restored.State))
}

func TestRestoreMissingVersion(t *testing.T) {
	handler, store, _ := newTestHandler(t)
	id := createTestBudget(t, handler, store)

	rec := httptest.NewRecorder()
	req := withParam(t, httptest.NewRequest(http.MethodPost, "/api/v1/budgets/"+id.String()+"/versions/9/restore", nil), "id", id.String())
	req = withParam(t, req, "number", "9")
	handler.Restore(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCustomizeRejectsInvalidCatalog(t *testing.T) {
	handler, store, _ := newTestHandler(t)
	id := createTestBudget(t, handler, store)

	payload := map[string]any{
		"catalog": map[string]any{
			"categories": []map[string]any{
				{"id": "network", "name": "Network", "tiers": map[string]any{}},
			},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := withParam(t, httptest.NewRequest(http.MethodPost, "/api/v1/admin/budgets/"+id.String()+"/customize", bytes.NewReader(body)), "id", id.String())
	handler.Customize(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCustomizeReplacesCatalogAndHistory(t *testing.T) {
	handler, store, _ := newTestHandler(t)
	id := createTestBudget(t, handler, store)

	custom := testCatalog()
	custom.Categories[0].IsCustomized = true
	custom.Categories[0].Tiers[catalog.TierGood] = catalog.TierOffering{Price: 4999}
	body, err := json.Marshal(map[string]any{"catalog": custom})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := withParam(t, httptest.NewRequest(http.MethodPost, "/api/v1/admin/budgets/"+id.String()+"/customize", bytes.NewReader(body)), "id", id.String())
	handler.Customize(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	b := store.budgets[id]
	require.NotEmpty(t, b.CustomCatalog)
	versions := store.versions[id]
	require.Len(t, versions, 1)
	require.Equal(t, budget.NoteCustomized, versions[0].Note)

	var state budget.State
	require.NoError(t, json.Unmarshal(b.CurrentState, &state))
	require.Equal(t, int64(4999), state.Totals.Subtotal)
}

func TestDeleteBudget(t *testing.T) {
	handler, store, _ := newTestHandler(t)
	id := createTestBudget(t, handler, store)

	rec := httptest.NewRecorder()
	req := withParam(t, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/budgets/"+id.String(), nil), "id", id.String())
	handler.Delete(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, store.budgets)
}
