package events

import (
	"context"
	"time"

	"sales-realtime-api/internal/model"
)

// Order event types.
const (
	OrderCreated       = "order.created"
	OrderPaid          = "order.paid"
	OrderShipped       = "order.shipped"
	OrderCompleted     = "order.completed"
	OrderCancelled     = "order.cancelled"
	OrderStatusChanged = "order.status_changed"
	OrderDeleted       = "order.deleted"
)

// OrderEvent is published after every successful order state change.
type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Status     int       `json:"status"`
	StatusName string    `json:"status_name"`
	Amount     string    `json:"amount"`
	At         time.Time `json:"at"`
}

// FromOrder builds an event of type t describing o.
func FromOrder(t string, o *model.Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:       t,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     int(o.Status),
		StatusName: o.Status.String(),
		Amount:     o.ActualAmount.String(),
		At:         at,
	}
}

// Publisher delivers order events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev OrderEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
