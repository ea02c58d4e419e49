package catalog

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Property types a catalog can be scoped to.
const (
	PropertyResidential = "residential"
	PropertyCondo       = "condo"
)

// Tier names recognised across the catalog, ordered cheapest first.
const (
	TierGood     = "good"
	TierStandard = "standard"
	TierBetter   = "better"
	TierBest     = "best"
)

// TierNone is the selection value meaning "no tier chosen" for a category.
const TierNone = "none"

var knownTiers = map[string]struct{}{
	TierGood:     {},
	TierStandard: {},
	TierBetter:   {},
	TierBest:     {},
}

// ErrInvalidCatalog wraps all catalog validation failures.
var ErrInvalidCatalog = errors.New("invalid catalog")

// TierOffering is a single priced tier within a category. Price is the base
// price at the 4000 sqft reference size in whole dollars. Label, Features and
// Brands are presentation fields passed through untouched.
type TierOffering struct {
	Price     int64    `json:"price"`
	SizeScale *float64 `json:"sizeScale,omitempty"`
	Label     string   `json:"label,omitempty"`
	Features  []string `json:"features,omitempty"`
	Brands    []string `json:"brands,omitempty"`
}

// Category is a priced technology subsystem offered across tiers.
type Category struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"name"`
	Description     string                  `json:"description,omitempty"`
	Icon            string                  `json:"icon,omitempty"`
	SizeScale       float64                 `json:"sizeScale"`
	BaseTierNoScale bool                    `json:"baseTierNoScale,omitempty"`
	IsCustomized    bool                    `json:"isCustomized,omitempty"`
	SortOrder       int                     `json:"sortOrder"`
	Tiers           map[string]TierOffering `json:"tiers"`
}

// Extra is a boolean add-on item. A nil SizeScale means the price is flat
// regardless of home size.
type Extra struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       int64    `json:"price"`
	SizeScale   *float64 `json:"sizeScale,omitempty"`
	Default     bool     `json:"default"`
}

// Catalog is the full set of categories and extras active for one property
// type. It is read-only input to the pricing engine.
type Catalog struct {
	PropertyType string     `json:"propertyType"`
	Categories   []Category `json:"categories"`
	Extras       []Extra    `json:"extras"`
}

// ValidPropertyType reports whether the value is a supported property type.
func ValidPropertyType(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case PropertyResidential, PropertyCondo:
		return true
	}
	return false
}

// Category returns the category with the given id.
func (c Catalog) Category(id string) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// Extra returns the extra with the given id.
func (c Catalog) Extra(id string) (Extra, bool) {
	for _, ex := range c.Extras {
		if ex.ID == id {
			return ex, true
		}
	}
	return Extra{}, false
}

// Validate checks catalog shape once at load time so the pricing engine never
// has to re-validate per computation. All violations are reported together.
func (c Catalog) Validate() error {
	var problems []string
	if !ValidPropertyType(c.PropertyType) {
		problems = append(problems, fmt.Sprintf("unknown property type %q", c.PropertyType))
	}
	seen := map[string]struct{}{}
	for _, cat := range c.Categories {
		if strings.TrimSpace(cat.ID) == "" {
			problems = append(problems, "category with empty id")
			continue
		}
		if _, dup := seen[cat.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate category id %q", cat.ID))
		}
		seen[cat.ID] = struct{}{}
		if len(cat.Tiers) == 0 {
			problems = append(problems, fmt.Sprintf("category %q has no tiers", cat.ID))
		}
		if !isFinite(cat.SizeScale) {
			problems = append(problems, fmt.Sprintf("category %q has non-finite sizeScale", cat.ID))
		}
		for name, tier := range cat.Tiers {
			if _, ok := knownTiers[name]; !ok {
				problems = append(problems, fmt.Sprintf("category %q has unknown tier %q", cat.ID, name))
			}
			if tier.Price < 0 && !cat.IsCustomized {
				problems = append(problems, fmt.Sprintf("category %q tier %q has negative price", cat.ID, name))
			}
			if tier.SizeScale != nil && !isFinite(*tier.SizeScale) {
				problems = append(problems, fmt.Sprintf("category %q tier %q has non-finite sizeScale", cat.ID, name))
			}
		}
	}
	seenExtras := map[string]struct{}{}
	for _, ex := range c.Extras {
		if strings.TrimSpace(ex.ID) == "" {
			problems = append(problems, "extra with empty id")
			continue
		}
		if _, dup := seenExtras[ex.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate extra id %q", ex.ID))
		}
		seenExtras[ex.ID] = struct{}{}
		if ex.Price < 0 {
			problems = append(problems, fmt.Sprintf("extra %q has negative price", ex.ID))
		}
		if ex.SizeScale != nil && !isFinite(*ex.SizeScale) {
			problems = append(problems, fmt.Sprintf("extra %q has non-finite sizeScale", ex.ID))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
