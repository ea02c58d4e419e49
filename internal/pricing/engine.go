package pricing

import (
	"math"

	"github.com/grantayeye/gamma-budget-planner/internal/catalog"
)

// Money represents a monetary value in whole dollars.
type Money = int64

// Sizing constants for the home-size elasticity model. Catalog base prices are
// quoted at ReferenceSqft; homes smaller than MinimumSqft price as MinimumSqft.
const (
	ReferenceSqft = 4000
	MinimumSqft   = 2500
)

// priceGranularity keeps displayed category and extra prices at round-dollar
// hundreds. Totals and tax are not subject to it.
const priceGranularity = 100

// DefaultTaxRateBps is the flat estimated tax applied to the equipment
// subtotal, in basis points.
const DefaultTaxRateBps = 700

// Modifier is a free-form signed dollar adjustment authored by the user.
// Negative amounts are credits and are not clamped.
type Modifier struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// Adjustment is a per-category dollar adjustment applied on top of the
// computed tier price.
type Adjustment struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// Selection is the caller-owned input state for a total calculation. Keys are
// catalog ids; entries referencing ids absent from the active catalog are
// tolerated and priced as zero so stale saved states still render.
type Selection struct {
	Tiers        map[string]string     `json:"tiers"`
	Extras       map[string]bool       `json:"extras"`
	Modifiers    []Modifier            `json:"modifiers,omitempty"`
	Adjustments  map[string]Adjustment `json:"adjustments,omitempty"`
	HomeSize     int                   `json:"homeSize"`
	PropertyType string                `json:"propertyType"`
}

// Totals aggregates the computed pricing components in whole dollars.
type Totals struct {
	Subtotal          Money `json:"subtotal"`
	ExtrasTotal       Money `json:"extrasTotal"`
	ModifiersTotal    Money `json:"modifiersTotal"`
	EquipmentSubtotal Money `json:"equipmentSubtotal"`
	TaxEstimate       Money `json:"taxEstimate"`
	GrandTotal        Money `json:"grandTotal"`
	SelectedCount     int   `json:"selectedCount"`
}

// SizeMultiplier returns the price multiplier for a home of sqft square feet
// under the given elasticity coefficient. A zero coefficient always yields 1.
// The result is unbounded: negative or extreme coefficients can produce
// negative multipliers, which is accepted caller responsibility.
func SizeMultiplier(sqft int, scale float64) float64 {
	if scale == 0 {
		return 1
	}
	effective := sqft
	if effective < MinimumSqft {
		effective = MinimumSqft
	}
	ratio := float64(effective) / float64(ReferenceSqft)
	return 1 + (ratio-1)*scale
}

// CategoryPrice computes the price of the chosen tier for a category at the
// given home size. Unknown or empty tiers price as zero. Customized
// categories return the stored price untouched; their tiers were hand-edited
// and must not be re-scaled. The result is rounded to the nearest hundred
// dollars.
func CategoryPrice(cat catalog.Category, tier string, homeSize int) Money {
	if tier == "" || tier == catalog.TierNone {
		return 0
	}
	offering, ok := cat.Tiers[tier]
	if !ok {
		return 0
	}
	if cat.IsCustomized {
		return offering.Price
	}
	if cat.BaseTierNoScale && tier == catalog.TierGood {
		return offering.Price
	}
	scale := cat.SizeScale
	if offering.SizeScale != nil {
		scale = *offering.SizeScale
	}
	return roundToGranularity(float64(offering.Price) * SizeMultiplier(homeSize, scale))
}

// ExtraPrice computes the price of an extra at the given home size. Extras
// without their own scale coefficient are flat; there is no catalog-level
// fallback for extras.
func ExtraPrice(ex catalog.Extra, homeSize int) Money {
	if ex.SizeScale == nil {
		return ex.Price
	}
	return roundToGranularity(float64(ex.Price) * SizeMultiplier(homeSize, *ex.SizeScale))
}

// CalculateTotal walks the active catalog against the selection and returns
// the aggregate figures. It never fails: selections referencing unknown
// catalog entries contribute zero.
func CalculateTotal(c catalog.Catalog, sel Selection, taxBps int) Totals {
	if taxBps <= 0 {
		taxBps = DefaultTaxRateBps
	}
	var t Totals
	for _, cat := range c.Categories {
		tier := sel.Tiers[cat.ID]
		if tier == "" || tier == catalog.TierNone {
			continue
		}
		t.Subtotal += CategoryPrice(cat, tier, sel.HomeSize)
		if adj, ok := sel.Adjustments[cat.ID]; ok {
			t.Subtotal += adj.Amount
		}
		t.SelectedCount++
	}
	for _, ex := range c.Extras {
		if sel.Extras[ex.ID] {
			t.ExtrasTotal += ExtraPrice(ex, sel.HomeSize)
		}
	}
	for _, mod := range sel.Modifiers {
		t.ModifiersTotal += mod.Amount
	}
	t.EquipmentSubtotal = t.Subtotal + t.ExtrasTotal + t.ModifiersTotal
	t.TaxEstimate = Money(math.Round(float64(t.EquipmentSubtotal) * float64(taxBps) / 10000))
	t.GrandTotal = t.EquipmentSubtotal + t.TaxEstimate
	return t
}

// tierPriority fixes the DominantTier tie-break: on equal counts the higher
// quality tier wins. Off-catalog tier names rank below all known tiers and
// tie-break lexicographically.
var tierPriority = map[string]int{
	catalog.TierBest:     4,
	catalog.TierBetter:   3,
	catalog.TierStandard: 2,
	catalog.TierGood:     1,
}

var tierLabels = map[string]string{
	catalog.TierGood:     "Good",
	catalog.TierStandard: "Standard",
	catalog.TierBetter:   "Better",
	catalog.TierBest:     "Best",
}

// DominantTier returns the display label of the most frequently selected tier
// across all categories, or empty when nothing is selected. Ties resolve by
// tier quality, best first.
func DominantTier(sel Selection) string {
	counts := map[string]int{}
	for _, tier := range sel.Tiers {
		if tier == "" || tier == catalog.TierNone {
			continue
		}
		counts[tier]++
	}
	winner := ""
	best := 0
	for tier, count := range counts {
		if count > best {
			winner, best = tier, count
			continue
		}
		if count == best && count > 0 && outranks(winner, tier) {
			winner = tier
		}
	}
	if winner == "" {
		return ""
	}
	if label, ok := tierLabels[winner]; ok {
		return label
	}
	return winner
}

// outranks reports whether candidate beats current under the documented
// tie-break order.
func outranks(current, candidate string) bool {
	cur, cand := tierPriority[current], tierPriority[candidate]
	if cur != cand {
		return cand > cur
	}
	return candidate < current
}

func roundToGranularity(value float64) Money {
	return Money(math.Round(value/priceGranularity)) * priceGranularity
}
