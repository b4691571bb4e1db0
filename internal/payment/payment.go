// Package payment talks to the hosted checkout provider.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrNotConfigured    = errors.New("payment provider is not configured")
)

// StatusPaid is the payment status of a settled session.
const StatusPaid = "paid"

// EventCheckoutCompleted is sent when a hosted checkout finishes.
const EventCheckoutCompleted = "checkout.session.completed"

// LineItem is one priced line of a checkout session.
type LineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// SessionRequest describes a checkout to open.
type SessionRequest struct {
	CustomerEmail string
	Items         []LineItem
}

// Session is the subset of a provider checkout session the service reads.
type Session struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"-"`
	CustomerEmail string `json:"-"`
}

// Event is a verified webhook delivery.
type Event struct {
	ID        string
	Type      string
	SessionID string
}

// Provider is the hosted checkout collaborator.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}

// UnitAmount converts a price to the smallest currency unit, rounding half
// away from zero.
func UnitAmount(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}
