package tasks

import (
	"context"
	"encoding/json"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/grantayeye/gamma-budget-planner/internal/budget"
)

type viewSink struct {
	budget.Store
	added map[uuid.UUID]int64
	gone  map[uuid.UUID]bool
}

func (s *viewSink) AddViews(_ context.Context, id uuid.UUID, delta int64) error {
	if s.gone[id] {
		return budget.ErrBudgetNotFound
	}
	if s.added == nil {
		s.added = map[uuid.UUID]int64{}
	}
	s.added[id] += delta
	return nil
}

func (s *viewSink) UpdateCurrentState(context.Context, uuid.UUID, json.RawMessage) error {
	return nil
}

func (s *viewSink) List(context.Context, int, int) ([]budget.Budget, int64, error) {
	return nil, 0, nil
}

func TestViewFlusher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	counter := budget.NewViewCounter(client)
	ctx := context.Background()

	alive := uuid.New()
	deleted := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, counter.Bump(ctx, alive))
	}
	require.NoError(t, counter.Bump(ctx, deleted))

	sink := &viewSink{gone: map[uuid.UUID]bool{deleted: true}}
	flusher := &ViewFlusher{Views: counter, Budgets: sink, Log: zerolog.Nop()}
	require.NoError(t, flusher.Flush(ctx))
	require.Equal(t, int64(3), sink.added[alive])
	require.NotContains(t, sink.added, deleted)

	// A second flush with nothing accrued is a no-op.
	require.NoError(t, flusher.Flush(ctx))
	require.Equal(t, int64(3), sink.added[alive])

	// Views landing after a drain survive for the next one.
	require.NoError(t, counter.Bump(ctx, alive))
	require.NoError(t, flusher.Flush(ctx))
	require.Equal(t, int64(4), sink.added[alive])
}
