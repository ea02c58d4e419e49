package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	viewsKey      = "budget:views"
	viewsDrainKey = "budget:views:draining"
)

// ViewCounter accumulates share-link view counts in a Redis hash so hot
// budgets do not write Postgres on every page load. The worker drains the
// hash on a timer.
type ViewCounter struct {
	client *redis.Client
}

func NewViewCounter(client *redis.Client) *ViewCounter {
	return &ViewCounter{client: client}
}

// Bump records one view for the budget.
func (v *ViewCounter) Bump(ctx context.Context, budgetID uuid.UUID) error {
	if err := v.client.HIncrBy(ctx, viewsKey, budgetID.String(), 1).Err(); err != nil {
		return fmt.Errorf("incrementing view count: %w", err)
	}
	return nil
}

// Drain atomically claims the accumulated counts and returns them. The hash
// is renamed before reading so bumps arriving mid-drain land in a fresh hash
// and are picked up next cycle.
func (v *ViewCounter) Drain(ctx context.Context) (map[uuid.UUID]int64, error) {
	err := v.client.Rename(ctx, viewsKey, viewsDrainKey).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) || err.Error() == "ERR no such key" {
			return nil, nil
		}
		return nil, fmt.Errorf("claiming view counts: %w", err)
	}

	raw, err := v.client.HGetAll(ctx, viewsDrainKey).Result()
	if err != nil {
		return nil, fmt.Errorf("reading view counts: %w", err)
	}
	if err := v.client.Del(ctx, viewsDrainKey).Err(); err != nil {
		return nil, fmt.Errorf("clearing drained view counts: %w", err)
	}

	out := make(map[uuid.UUID]int64, len(raw))
	for field, value := range raw {
		id, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		out[id] = n
	}
	return out, nil
}
