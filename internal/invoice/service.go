package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Amadou-dot/restockd/internal/orders"
)

const (
	prefix      = "invoices"
	contentType = "application/pdf"
)

// Blobs uploads rendered invoices.
type Blobs interface {
	Put(ctx context.Context, prefix, name, contentType string, body []byte) (string, error)
}

// Orders records where an order's invoice lives.
type Orders interface {
	SetInvoiceURL(ctx context.Context, orderID, url string) error
}

// Service issues invoices: render, upload, then attach the URL to the order.
type Service struct {
	renderer *Renderer
	blobs    Blobs
	orders   Orders
	logger   zerolog.Logger
	nowFunc  func() time.Time
}

func NewService(renderer *Renderer, blobs Blobs, orders Orders, logger zerolog.Logger) *Service {
	return &Service{
		renderer: renderer,
		blobs:    blobs,
		orders:   orders,
		logger:   logger.With().Str("component", "invoice").Logger(),
		nowFunc:  time.Now,
	}
}

// Issue generates the invoice for o and returns its URL. o.InvoiceURL is
// set on success.
func (s *Service) Issue(ctx context.Context, o *orders.Order, c Customer) (string, error) {
	pdf, err := s.renderer.Render(o, c)
	if err != nil {
		return "", err
	}
	url, err := s.blobs.Put(ctx, prefix, Filename(o.ID, s.nowFunc()), contentType, pdf)
	if err != nil {
		return "", fmt.Errorf("upload invoice: %w", err)
	}
	if err := s.orders.SetInvoiceURL(ctx, o.ID, url); err != nil {
		return "", fmt.Errorf("attach invoice: %w", err)
	}
	o.InvoiceURL = url

	s.logger.Info().Str("order_id", o.ID).Str("invoice_url", url).Int("bytes", len(pdf)).Msg("invoice issued")
	return url, nil
}
