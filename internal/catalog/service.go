package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// TaskEnqueuer schedules background work after catalog edits. Implemented by
// the asynq-backed task client in production.
type TaskEnqueuer interface {
	EnqueueRepriceAll(ctx context.Context, propertyType string) error
}

// Service serves catalogs to the quote engine and the public API, and applies
// admin edits. Reads go through the Redis cache; writes invalidate it and
// trigger a reprice of stored budgets.
type Service struct {
	store Store
	cache *Cache
	tasks TaskEnqueuer
	log   zerolog.Logger
}

func NewService(store Store, cache *Cache, tasks TaskEnqueuer, log zerolog.Logger) *Service {
	return &Service{store: store, cache: cache, tasks: tasks, log: log}
}

// Get returns the catalog for a property type, preferring the cache. A cache
// miss loads from Postgres, validates, and backfills the cache.
func (s *Service) Get(ctx context.Context, propertyType string) (Catalog, error) {
	if s.cache != nil {
		var cached Catalog
		hit, err := s.cache.Get(ctx, propertyType, &cached)
		if err != nil {
			s.log.Warn().Err(err).Str("property_type", propertyType).Msg("catalog cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	cat, err := s.store.Load(ctx, propertyType)
	if err != nil {
		return Catalog{}, err
	}
	if err := cat.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("stored catalog for %q is invalid: %w", propertyType, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cat); err != nil {
			s.log.Warn().Err(err).Str("property_type", propertyType).Msg("catalog cache write failed")
		}
	}
	return cat, nil
}

// UpsertCategory validates and persists a category, then invalidates the
// cache and schedules a reprice of budgets priced against this catalog.
func (s *Service) UpsertCategory(ctx context.Context, propertyType string, cat Category) error {
	probe := Catalog{PropertyType: propertyType, Categories: []Category{cat}}
	if err := probe.Validate(); err != nil {
		return err
	}
	if err := s.store.UpsertCategory(ctx, propertyType, cat); err != nil {
		return err
	}
	s.afterWrite(ctx, propertyType)
	return nil
}

// DeleteCategory removes a category and triggers the same invalidation path.
func (s *Service) DeleteCategory(ctx context.Context, propertyType, id string) error {
	if err := s.store.DeleteCategory(ctx, propertyType, id); err != nil {
		return err
	}
	s.afterWrite(ctx, propertyType)
	return nil
}

// UpsertExtra validates and persists an extra.
func (s *Service) UpsertExtra(ctx context.Context, propertyType string, ex Extra) error {
	probe := Catalog{PropertyType: propertyType, Extras: []Extra{ex}}
	if err := probe.Validate(); err != nil {
		return err
	}
	if err := s.store.UpsertExtra(ctx, propertyType, ex); err != nil {
		return err
	}
	s.afterWrite(ctx, propertyType)
	return nil
}

// DeleteExtra removes an extra.
func (s *Service) DeleteExtra(ctx context.Context, propertyType, id string) error {
	if err := s.store.DeleteExtra(ctx, propertyType, id); err != nil {
		return err
	}
	s.afterWrite(ctx, propertyType)
	return nil
}

func (s *Service) afterWrite(ctx context.Context, propertyType string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, propertyType); err != nil {
			s.log.Warn().Err(err).Str("property_type", propertyType).Msg("catalog cache invalidation failed")
		}
	}
	if s.tasks != nil {
		if err := s.tasks.EnqueueRepriceAll(ctx, propertyType); err != nil {
			s.log.Error().Err(err).Str("property_type", propertyType).Msg("failed to enqueue reprice task")
		}
	}
}
