package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EventTypeHeader carries the event type on every published message.
const EventTypeHeader = "event-type"

// Order event types.
const (
	OrderCreated       = "order.created"
	OrderPatched       = "order.patched"
	OrderStatusChanged = "order.status_changed"
)

// OrderEvent describes a change to one order.
type OrderEvent struct {
	Type        string    `json:"type"`
	OrderID     int64     `json:"order_id"`
	OrderNumber int64     `json:"order_number,omitempty"`
	Status      string    `json:"status,omitempty"`
	Fields      []string  `json:"fields,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// PublishOrderEvent encodes and publishes an event keyed by order id, so all
// events of one order land on the same partition.
func PublishOrderEvent(ctx context.Context, client Client, event OrderEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Type, err)
	}
	key := []byte(strconv.FormatInt(event.OrderID, 10))
	return client.Publish(ctx, key, payload, map[string]string{EventTypeHeader: event.Type})
}

// DecodeOrderEvent parses a consumed message.
func DecodeOrderEvent(msg Message) (OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return OrderEvent{}, fmt.Errorf("decode order event: %w", err)
	}
	if event.Type == "" {
		event.Type = msg.Headers[EventTypeHeader]
	}
	if event.OrderID == 0 {
		return OrderEvent{}, fmt.Errorf("order event without order id")
	}
	return event, nil
}
