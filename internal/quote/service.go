package quote

import (
	"context"
	"errors"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/grantayeye/gamma-budget-planner/internal/catalog"
	"github.com/grantayeye/gamma-budget-planner/internal/common"
	"github.com/grantayeye/gamma-budget-planner/internal/obs"
	"github.com/grantayeye/gamma-budget-planner/internal/pricing"
)

// CatalogProvider resolves the active catalog for a property type.
// Implemented by the catalog service.
type CatalogProvider interface {
	Get(ctx context.Context, propertyType string) (catalog.Catalog, error)
}

// Result is a fully priced selection.
type Result struct {
	Selection    pricing.Selection `json:"selection"`
	Totals       pricing.Totals    `json:"totals"`
	DominantTier string            `json:"dominantTier"`
}

// Service validates quote payloads and prices them against the active
// catalog.
type Service struct {
	catalogs CatalogProvider
	validate *validator.Validate
	taxBps   int
}

// ServiceConfig configures the quote Service.
type ServiceConfig struct {
	Catalogs   CatalogProvider
	Validator  *validator.Validate
	TaxRateBps int
}

func NewService(cfg ServiceConfig) *Service {
	v := cfg.Validator
	if v == nil {
		v = validator.New()
	}
	taxBps := cfg.TaxRateBps
	if taxBps <= 0 {
		taxBps = pricing.DefaultTaxRateBps
	}
	return &Service{catalogs: cfg.Catalogs, validate: v, taxBps: taxBps}
}

// ValidatePayload checks payload shape and returns a field-keyed AppError on
// failure.
func (s *Service) ValidatePayload(payload SelectionPayload) error {
	err := s.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[strings.ToLower(fe.Field()[:1])+fe.Field()[1:]] = fe.Tag()
		}
		return &common.AppError{
			Code:       "VALIDATION",
			Message:    "invalid quote payload",
			HTTPStatus: 422,
			Details:    details,
		}
	}
	return err
}

// Compute validates the payload, resolves the catalog for its property type,
// and prices it.
func (s *Service) Compute(ctx context.Context, payload SelectionPayload) (Result, error) {
	if err := s.ValidatePayload(payload); err != nil {
		return Result{}, err
	}
	cat, err := s.catalogs.Get(ctx, payload.PropertyType)
	if err != nil {
		return Result{}, err
	}
	return s.Price(cat, payload), nil
}

// Price computes totals against an explicit catalog. Budgets carrying a
// customized catalog price through this path with their own copy.
func (s *Service) Price(cat catalog.Catalog, payload SelectionPayload) Result {
	return s.PriceSelection(cat, payload.Selection())
}

// PriceSelection prices an already-built engine selection. The reprice worker
// uses this to recompute stored budget states without revalidating payloads.
func (s *Service) PriceSelection(cat catalog.Catalog, sel pricing.Selection) Result {
	totals := pricing.CalculateTotal(cat, sel, s.taxBps)
	if obs.QuotesComputedTotal != nil {
		obs.QuotesComputedTotal.WithLabelValues(sel.PropertyType).Inc()
	}
	return Result{
		Selection:    sel,
		Totals:       totals,
		DominantTier: pricing.DominantTier(sel),
	}
}
