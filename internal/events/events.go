// Package events defines the order lifecycle messages exchanged between the
// API and the invoice worker, independent of the broker carrying them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TypeOrderCompleted is emitted once an order has been persisted at checkout.
const TypeOrderCompleted = "order.completed"

// OrderEvent is the payload sent from API -> broker -> worker.
type OrderEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher delivers order events to a broker.
type Publisher interface {
	Publish(ctx context.Context, evt OrderEvent) error
}

// Noop discards events. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, OrderEvent) error { return nil }

var ErrMalformedEvent = errors.New("malformed order event")

func Encode(evt OrderEvent) ([]byte, error) {
	b, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode order event: %w", err)
	}
	return b, nil
}

// Decode parses a message body and rejects events without a type or order id.
func Decode(body []byte) (OrderEvent, error) {
	var evt OrderEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return OrderEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.Type == "" || evt.OrderID == "" {
		return OrderEvent{}, fmt.Errorf("%w: type and order_id are required", ErrMalformedEvent)
	}
	return evt, nil
}
