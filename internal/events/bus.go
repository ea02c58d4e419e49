package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is one row in the budget activity log.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Topic      string          `json:"topic"`
	BudgetID   uuid.UUID       `json:"budgetId"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// EventStore defines the persistence operations required by the bus.
type EventStore interface {
	InsertEvent(ctx context.Context, topic string, budgetID uuid.UUID, payload []byte) (Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
	ListByBudget(ctx context.Context, budgetID uuid.UUID, limit int) ([]Event, error)
}

// Notifier reacts to emitted events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus persists budget activity and fans it out to downstream handlers.
// Activity logging is best effort: Emit returns errors for the caller to
// inspect but budget operations never roll back on a failed emit.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
	Log       zerolog.Logger
}

// Emit records the event and dispatches it to all configured notifiers.
func (b *Bus) Emit(ctx context.Context, topic string, budgetID uuid.UUID, payload any) error {
	if b == nil || b.Store == nil {
		return errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return errors.New("events: topic is required")
	}
	if budgetID == uuid.Nil {
		return errors.New("events: budget id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := b.Store.InsertEvent(ctx, topic, budgetID, encoded)
	if err != nil {
		b.Log.Error().Err(err).Str("topic", topic).Str("budget_id", budgetID.String()).Msg("failed to persist event")
		return fmt.Errorf("events: persist event: %w", err)
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []byte("{}"), nil
		}
		data := []byte(v)
		if !json.Valid(data) {
			return nil, errors.New("payload is not valid json")
		}
		return data, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
