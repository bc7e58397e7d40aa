// Package events publishes order and table lifecycle events for downstream
// reporting consumers.
package events

import (
	"context"
	"time"
)

// Event types, used as AMQP routing keys.
const (
	OrderCreated    = "order.created"
	OrderItemsAdded = "order.items_added"
	OrderItemStatus = "order.item_status"
	OrderClosed     = "order.closed"
	OrderCancelled  = "order.cancelled"
	TableStatus     = "table.status"
)

// Event is one lifecycle notification. Data is marshalled as JSON.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// New stamps an event of type typ with the current time.
func New(typ string, data any) Event {
	return Event{Type: typ, At: time.Now().UTC(), Data: data}
}

// Publisher sends events after the change they describe has been committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
