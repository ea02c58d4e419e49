package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type names routed through asynq.
const (
	TypeRepriceAll = "budget:reprice_all"
)

// RepricePayload identifies which catalog changed.
type RepricePayload struct {
	PropertyType string `json:"propertyType"`
}

// NewRepriceAllTask builds the task enqueued after a catalog edit.
func NewRepriceAllTask(propertyType string) (*asynq.Task, error) {
	payload, err := json.Marshal(RepricePayload{PropertyType: propertyType})
	if err != nil {
		return nil, fmt.Errorf("encoding reprice payload: %w", err)
	}
	return asynq.NewTask(TypeRepriceAll, payload, asynq.MaxRetry(5)), nil
}

// Client wraps the asynq client behind the enqueuer interfaces the services
// consume.
type Client struct {
	inner *asynq.Client
}

// NewClient constructs a Client.
func NewClient(inner *asynq.Client) *Client {
	return &Client{inner: inner}
}

// Close releases the underlying asynq client connection.
func (c *Client) Close() error {
	return c.inner.Close()
}

// EnqueueRepriceAll schedules a full reprice of budgets priced against the
// given property type's catalog.
func (c *Client) EnqueueRepriceAll(ctx context.Context, propertyType string) error {
	task, err := NewRepriceAllTask(propertyType)
	if err != nil {
		return err
	}
	if _, err := c.inner.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueueing %s: %w", TypeRepriceAll, err)
	}
	return nil
}
