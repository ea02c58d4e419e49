package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists activity events in the budget_events table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates an EventStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InsertEvent appends one event to the log.
func (s *PostgresStore) InsertEvent(ctx context.Context, topic string, budgetID uuid.UUID, payload []byte) (Event, error) {
	var ev Event
	err := s.pool.QueryRow(ctx, `
		INSERT INTO budget_events (topic, budget_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, topic, budget_id, payload, occurred_at`,
		topic, budgetID, payload,
	).Scan(&ev.ID, &ev.Topic, &ev.BudgetID, &ev.Payload, &ev.OccurredAt)
	if err != nil {
		return Event{}, fmt.Errorf("inserting event: %w", err)
	}
	return ev, nil
}

// ListRecent returns the newest events across all budgets.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	return s.list(ctx, `
		SELECT id, topic, budget_id, payload, occurred_at
		FROM budget_events
		ORDER BY occurred_at DESC
		LIMIT $1`, clampLimit(limit))
}

// ListByBudget returns the newest events for one budget.
func (s *PostgresStore) ListByBudget(ctx context.Context, budgetID uuid.UUID, limit int) ([]Event, error) {
	return s.list(ctx, `
		SELECT id, topic, budget_id, payload, occurred_at
		FROM budget_events
		WHERE budget_id = $2
		ORDER BY occurred_at DESC
		LIMIT $1`, clampLimit(limit), budgetID)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.BudgetID, &ev.Payload, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

var _ EventStore = (*PostgresStore)(nil)
