package quote

import (
	"github.com/grantayeye/gamma-budget-planner/internal/pricing"
)

// SelectionPayload is the wire form of a quote request. Tier and extra
// references are tolerated even when the catalog no longer knows them; the
// engine prices unknowns at zero.
type SelectionPayload struct {
	PropertyType string             `json:"propertyType" validate:"required,oneof=residential condo"`
	HomeSize     *int               `json:"homeSize" validate:"omitempty,gt=0"`
	Tiers        map[string]string            `json:"tiers" validate:"omitempty,dive,keys,required,endkeys,required"`
	Extras       map[string]bool              `json:"extras"`
	Modifiers    []ModifierPayload            `json:"modifiers" validate:"omitempty,dive"`
	Adjustments  map[string]AdjustmentPayload `json:"adjustments" validate:"omitempty,dive"`
}

// ModifierPayload is a named flat amount applied after equipment pricing.
type ModifierPayload struct {
	Name   string `json:"name" validate:"required"`
	Amount int64  `json:"amount"`
}

// AdjustmentPayload is a per-category manual price adjustment, keyed by
// category id in the payload.
type AdjustmentPayload struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// Selection converts the payload into engine input. A missing home size
// defaults to the reference size so a bare selection prices at base.
func (p SelectionPayload) Selection() pricing.Selection {
	homeSize := pricing.ReferenceSqft
	if p.HomeSize != nil {
		homeSize = *p.HomeSize
	}
	sel := pricing.Selection{
		PropertyType: p.PropertyType,
		HomeSize:     homeSize,
		Tiers:        p.Tiers,
		Extras:       p.Extras,
	}
	for _, m := range p.Modifiers {
		sel.Modifiers = append(sel.Modifiers, pricing.Modifier{Name: m.Name, Amount: m.Amount})
	}
	if len(p.Adjustments) > 0 {
		sel.Adjustments = make(map[string]pricing.Adjustment, len(p.Adjustments))
		for id, a := range p.Adjustments {
			sel.Adjustments[id] = pricing.Adjustment{Name: a.Name, Amount: a.Amount}
		}
	}
	return sel
}
