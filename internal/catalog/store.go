package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a category or extra does not exist.
var ErrNotFound = errors.New("catalog entry not found")

// Store is the persistence surface for the editable catalog.
type Store interface {
	Load(ctx context.Context, propertyType string) (Catalog, error)
	UpsertCategory(ctx context.Context, propertyType string, cat Category) error
	DeleteCategory(ctx context.Context, propertyType, id string) error
	UpsertExtra(ctx context.Context, propertyType string, ex Extra) error
	DeleteExtra(ctx context.Context, propertyType, id string) error
}

// PostgresStore implements Store using pgxpool. Tier maps are stored as JSONB
// so admin edits round-trip without schema churn.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Load assembles the full catalog for a property type, categories ordered by
// their configured sort order.
func (s *PostgresStore) Load(ctx context.Context, propertyType string) (Catalog, error) {
	cat := Catalog{PropertyType: propertyType}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, icon, size_scale, base_tier_no_scale, is_customized, sort_order, tiers
		FROM catalog_categories
		WHERE property_type = $1
		ORDER BY sort_order ASC, id ASC`, propertyType)
	if err != nil {
		return Catalog{}, fmt.Errorf("loading categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Category
		var tiers []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.SizeScale, &c.BaseTierNoScale, &c.IsCustomized, &c.SortOrder, &tiers); err != nil {
			return Catalog{}, fmt.Errorf("scanning category row: %w", err)
		}
		if err := json.Unmarshal(tiers, &c.Tiers); err != nil {
			return Catalog{}, fmt.Errorf("decoding tiers for category %q: %w", c.ID, err)
		}
		cat.Categories = append(cat.Categories, c)
	}
	if err := rows.Err(); err != nil {
		return Catalog{}, fmt.Errorf("iterating category rows: %w", err)
	}

	exRows, err := s.pool.Query(ctx, `
		SELECT id, name, description, price, size_scale, is_default
		FROM catalog_extras
		WHERE property_type = $1
		ORDER BY id ASC`, propertyType)
	if err != nil {
		return Catalog{}, fmt.Errorf("loading extras: %w", err)
	}
	defer exRows.Close()
	for exRows.Next() {
		var e Extra
		if err := exRows.Scan(&e.ID, &e.Name, &e.Description, &e.Price, &e.SizeScale, &e.Default); err != nil {
			return Catalog{}, fmt.Errorf("scanning extra row: %w", err)
		}
		cat.Extras = append(cat.Extras, e)
	}
	if err := exRows.Err(); err != nil {
		return Catalog{}, fmt.Errorf("iterating extra rows: %w", err)
	}
	return cat, nil
}

// UpsertCategory inserts or replaces a category definition.
func (s *PostgresStore) UpsertCategory(ctx context.Context, propertyType string, cat Category) error {
	tiers, err := json.Marshal(cat.Tiers)
	if err != nil {
		return fmt.Errorf("encoding tiers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO catalog_categories (property_type, id, name, description, icon, size_scale, base_tier_no_scale, is_customized, sort_order, tiers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (property_type, id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			size_scale = EXCLUDED.size_scale,
			base_tier_no_scale = EXCLUDED.base_tier_no_scale,
			is_customized = EXCLUDED.is_customized,
			sort_order = EXCLUDED.sort_order,
			tiers = EXCLUDED.tiers,
			updated_at = NOW()`,
		propertyType, cat.ID, cat.Name, cat.Description, cat.Icon,
		cat.SizeScale, cat.BaseTierNoScale, cat.IsCustomized, cat.SortOrder, tiers,
	)
	if err != nil {
		return fmt.Errorf("upserting category: %w", err)
	}
	return nil
}

// DeleteCategory removes a category from the catalog.
func (s *PostgresStore) DeleteCategory(ctx context.Context, propertyType, id string) error {
	result, err := s.pool.Exec(ctx,
		`DELETE FROM catalog_categories WHERE property_type = $1 AND id = $2`,
		propertyType, id,
	)
	if err != nil {
		return fmt.Errorf("deleting category: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertExtra inserts or replaces an extra definition.
func (s *PostgresStore) UpsertExtra(ctx context.Context, propertyType string, ex Extra) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO catalog_extras (property_type, id, name, description, price, size_scale, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (property_type, id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			size_scale = EXCLUDED.size_scale,
			is_default = EXCLUDED.is_default,
			updated_at = NOW()`,
		propertyType, ex.ID, ex.Name, ex.Description, ex.Price, ex.SizeScale, ex.Default,
	)
	if err != nil {
		return fmt.Errorf("upserting extra: %w", err)
	}
	return nil
}

// DeleteExtra removes an extra from the catalog.
func (s *PostgresStore) DeleteExtra(ctx context.Context, propertyType, id string) error {
	result, err := s.pool.Exec(ctx,
		`DELETE FROM catalog_extras WHERE property_type = $1 AND id = $2`,
		propertyType, id,
	)
	if err != nil {
		return fmt.Errorf("deleting extra: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
