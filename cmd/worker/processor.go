package main

import (
	"context"
	"errors"
	"fmt"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/Amadou-dot/restockd/internal/auth"
	"github.com/Amadou-dot/restockd/internal/events"
	"github.com/Amadou-dot/restockd/internal/invoice"
	"github.com/Amadou-dot/restockd/internal/metrics"
	"github.com/Amadou-dot/restockd/internal/orders"
)

// OrderStore is the part of the orders table the worker touches.
type OrderStore interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	IncrementAttempts(ctx context.Context, orderID string) error
}

type Invoicer interface {
	Issue(ctx context.Context, o *orders.Order, c invoice.Customer) (string, error)
}

// Processor backfills invoices for completed orders whose invoice could not
// be issued during checkout.
type Processor struct {
	orders   OrderStore
	invoices Invoicer
	metrics  metrics.Counter
	logger   zerolog.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(store OrderStore, invoices Invoicer, counter metrics.Counter, logger zerolog.Logger) *Processor {
	if counter == nil {
		counter = (*metrics.Recorder)(nil)
	}
	return &Processor{
		orders:   store,
		invoices: invoices,
		metrics:  counter,
		logger:   logger.With().Str("component", "invoice_worker").Logger(),
	}
}

// Handle receives an SQS batch and reports the messages that should be
// retried. Malformed bodies are dropped since a retry cannot fix them.
func (p *Processor) Handle(ctx context.Context, ev lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
	var resp lambdaevents.SQSEventResponse
	for _, rec := range ev.Records {
		evt, err := events.Decode([]byte(rec.Body))
		if err != nil {
			p.logger.Error().Err(err).Str("message_id", rec.MessageId).Msg("dropping malformed message")
			continue
		}
		if err := p.Process(ctx, evt); err != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures, lambdaevents.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

// Process issues the invoice for one order event. It is a no-op for orders
// that already have an invoice, so redelivered events are harmless.
func (p *Processor) Process(ctx context.Context, evt events.OrderEvent) error {
	log := p.logger.With().
		Str("order_id", evt.OrderID).
		Str("correlation_id", evt.CorrelationID).
		Logger()

	if evt.Type != events.TypeOrderCompleted {
		log.Debug().Str("type", evt.Type).Msg("ignoring event")
		return nil
	}

	order, err := p.orders.Get(ctx, evt.OrderID)
	if err != nil {
		return fmt.Errorf("failed to fetch order: %w", err)
	}
	if order == nil {
		log.Error().Msg("order not found")
		return fmt.Errorf("order not found: %s", evt.OrderID)
	}
	if order.InvoiceURL != "" {
		log.Debug().Msg("invoice already issued")
		return nil
	}

	url, err := p.invoices.Issue(ctx, order, customer(evt, order))
	if err != nil {
		p.metrics.Count(ctx, metrics.InvoiceFailures, 1)
		if aerr := p.orders.IncrementAttempts(ctx, order.ID); aerr != nil {
			err = errors.Join(err, aerr)
		}
		log.Error().Err(err).Int("attempts", order.Attempts+1).Msg("invoice backfill failed")
		return err
	}

	log.Info().Str("invoice_url", url).Msg("invoice issued")
	return nil
}

func customer(evt events.OrderEvent, o *orders.Order) invoice.Customer {
	email := evt.CustomerEmail
	if email == "" {
		email = o.CustomerEmail
	}
	buyer := auth.Identity{UserID: evt.UserID, Email: email, Name: evt.CustomerName}
	return invoice.Customer{Name: buyer.DisplayName(), Email: email}
}
