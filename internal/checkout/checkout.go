// Package checkout turns a paid hosted checkout session into an order.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Amadou-dot/restockd/internal/auth"
	"github.com/Amadou-dot/restockd/internal/cart"
	"github.com/Amadou-dot/restockd/internal/events"
	"github.com/Amadou-dot/restockd/internal/idempotency"
	"github.com/Amadou-dot/restockd/internal/invoice"
	"github.com/Amadou-dot/restockd/internal/logging"
	"github.com/Amadou-dot/restockd/internal/metrics"
	"github.com/Amadou-dot/restockd/internal/orders"
	"github.com/Amadou-dot/restockd/internal/payment"
	"github.com/Amadou-dot/restockd/internal/validation"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrPaymentIncomplete  = errors.New("payment must be completed before creating order")
	ErrPaymentMismatch    = errors.New("session does not belong to current user")
	ErrCheckoutInProgress = errors.New("checkout for this session is already in progress")
)

const (
	// settleTimeout bounds the steps that run after the order is committed.
	settleTimeout = 30 * time.Second
	// staleAfter is how long an IN_PROGRESS record may sit untouched before
	// a retry takes it over.
	staleAfter = 2 * time.Minute
)

// Carts is the cart surface checkout reads and clears.
type Carts interface {
	Get(ctx context.Context, userID string) (*cart.View, error)
	Clear(ctx context.Context, userID string) error
}

// Orders persists orders together with their idempotency record.
type Orders interface {
	CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order orders.Order, ttlWindow time.Duration) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

// Idempotency tracks completion per payment session.
type Idempotency interface {
	TableName() string
	TTLWindow() time.Duration
	NewRecord(key, orderID string) idempotency.Record
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Invoices issues an invoice for a freshly created order.
type Invoices interface {
	Issue(ctx context.Context, o *orders.Order, c invoice.Customer) (string, error)
}

// Result is returned by Complete and replayed verbatim for repeated calls.
type Result struct {
	OrderID    string          `json:"orderId"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	ItemCount  int             `json:"itemCount"`
	InvoiceURL string          `json:"invoiceUrl,omitempty"`
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Carts       Carts
	Payments    payment.Provider
	Orders      Orders
	Idempotency Idempotency
	Invoices    Invoices
	Events      events.Publisher
	Metrics     metrics.Counter
	Logger      zerolog.Logger
}

type Service struct {
	carts      Carts
	payments   payment.Provider
	orders     Orders
	idem       Idempotency
	invoices   Invoices
	events     events.Publisher
	metrics    metrics.Counter
	logger     zerolog.Logger
	newID      func() string
	nowFunc    func() time.Time
	staleAfter time.Duration
}

func NewService(d Deps) *Service {
	s := &Service{
		carts:      d.Carts,
		payments:   d.Payments,
		orders:     d.Orders,
		idem:       d.Idempotency,
		invoices:   d.Invoices,
		events:     d.Events,
		metrics:    d.Metrics,
		logger:     d.Logger.With().Str("component", "checkout").Logger(),
		newID:      uuid.NewString,
		nowFunc:    time.Now,
		staleAfter: staleAfter,
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.metrics == nil {
		s.metrics = (*metrics.Recorder)(nil)
	}
	return s
}

// Start opens a hosted checkout session for the caller's cart.
func (s *Service) Start(ctx context.Context, user auth.Identity) (*payment.Session, error) {
	view, err := s.carts.Get(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	if view.IsEmpty() {
		return nil, ErrEmptyCart
	}

	req := payment.SessionRequest{CustomerEmail: user.Email}
	for _, line := range view.Items {
		req.Items = append(req.Items, payment.LineItem{
			Name:      line.Product.Name,
			UnitPrice: line.Product.Price,
			Quantity:  line.Quantity,
		})
	}
	session, err := s.payments.CreateSession(ctx, req)
	if err != nil {
		return nil, err
	}
	s.metrics.Count(ctx, metrics.CheckoutsStarted, 1)
	return session, nil
}

// Complete converts a paid session into an order, at most once per session.
// A repeated call with the same session returns the first call's result.
func (s *Service) Complete(ctx context.Context, user auth.Identity, sessionID string) (*Result, error) {
	if sessionID == "" {
		return nil, validation.Field("sessionId", "Session ID is required to complete order")
	}
	log := s.logger.With().Str("user_id", user.UserID).Str("session_id", sessionID).Logger()

	rec, err := s.idem.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return s.resume(ctx, log, user, rec)
	}

	session, err := s.payments.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.PaymentStatus != payment.StatusPaid {
		return nil, ErrPaymentIncomplete
	}
	if session.CustomerEmail != user.Email {
		return nil, ErrPaymentMismatch
	}

	view, err := s.carts.Get(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	if view.IsEmpty() {
		return nil, ErrEmptyCart
	}

	order := snapshot(view)
	order.ID = s.newID()
	order.CreatedAt = s.nowFunc().UTC()
	order.PaymentSessionID = sessionID
	order.CustomerEmail = user.Email

	err = s.orders.CreateWithIdempotencyTransaction(ctx, s.idem.TableName(), s.idem.NewRecord(sessionID, order.ID), order, s.idem.TTLWindow())
	if errors.Is(err, orders.ErrDuplicate) {
		return nil, ErrCheckoutInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	log.Info().Str("order_id", order.ID).Str("total_price", order.TotalPrice.String()).Msg("order created")

	// The order exists now; a client hanging up must not strand it half done.
	ctx, cancel := settleContext(ctx)
	defer cancel()

	if _, err := s.invoices.Issue(ctx, &order, invoice.Customer{Name: user.DisplayName(), Email: user.Email}); err != nil {
		s.metrics.Count(ctx, metrics.InvoiceFailures, 1)
		log.Warn().Err(err).Str("order_id", order.ID).Msg("invoice generation failed, left to the worker")
	}

	return s.finish(ctx, log, user, sessionID, &order)
}

func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// stale reports whether an IN_PROGRESS record was abandoned by the request
// that wrote it.
func (s *Service) stale(rec *idempotency.Record) bool {
	return rec.InProgress() && s.nowFunc().Sub(rec.UpdatedAt) >= s.staleAfter
}

func (s *Service) resume(ctx context.Context, log zerolog.Logger, user auth.Identity, rec *idempotency.Record) (*Result, error) {
	if rec.InProgress() && !s.stale(rec) {
		return nil, ErrCheckoutInProgress
	}

	order, err := s.orders.Get(ctx, rec.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("idempotency record %s points at missing order %s", rec.IdempotencyKey, rec.OrderID)
	}
	if order.UserID != user.UserID {
		return nil, ErrPaymentMismatch
	}

	switch {
	case rec.Done():
		var res Result
		if err := rec.DecodeResponse(&res); err != nil {
			return nil, err
		}
		s.metrics.Count(ctx, metrics.CheckoutsReplayed, 1)
		log.Info().Str("order_id", order.ID).Msg("replayed completed checkout")
		return &res, nil
	case rec.Failed(), rec.InProgress():
		log.Info().Str("order_id", order.ID).Str("status", rec.Status).Str("note", rec.Note).Msg("resuming unfinished checkout")
		ctx, cancel := settleContext(ctx)
		defer cancel()
		return s.finish(ctx, log, user, rec.IdempotencyKey, order)
	}
	return nil, fmt.Errorf("unknown idempotency status %q", rec.Status)
}

// finish runs the steps after the order exists: clear the cart, announce the
// order and record the response for replays.
func (s *Service) finish(ctx context.Context, log zerolog.Logger, user auth.Identity, sessionID string, order *orders.Order) (*Result, error) {
	if err := s.carts.Clear(ctx, user.UserID); err != nil {
		if mErr := s.idem.MarkFailed(ctx, sessionID, "clear cart: "+err.Error()); mErr != nil {
			log.Error().Err(mErr).Msg("failed to mark checkout failed")
		}
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	evt := events.OrderEvent{
		Type:          events.TypeOrderCompleted,
		OrderID:       order.ID,
		UserID:        user.UserID,
		CustomerEmail: user.Email,
		CustomerName:  user.Name,
		CorrelationID: logging.RequestIDFromContext(ctx),
		OccurredAt:    s.nowFunc().UTC(),
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		log.Warn().Err(err).Str("order_id", order.ID).Msg("failed to publish order event")
	}
	s.metrics.Count(ctx, metrics.OrdersCompleted, 1)

	res := &Result{
		OrderID:    order.ID,
		TotalPrice: order.TotalPrice,
		ItemCount:  len(order.Items),
		InvoiceURL: order.InvoiceURL,
	}
	body, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	if err := s.idem.MarkDone(ctx, sessionID, string(body), http.StatusOK); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("failed to mark checkout done")
	}
	return res, nil
}

func snapshot(view *cart.View) orders.Order {
	o := orders.Order{
		UserID:     view.UserID,
		Status:     orders.StatusCompleted,
		TotalPrice: view.TotalPrice,
		Items:      make([]orders.Item, 0, len(view.Items)),
	}
	for _, line := range view.Items {
		o.Items = append(o.Items, orders.Item{
			ProductID:    line.Product.ID,
			ProductName:  line.Product.Name,
			ProductPrice: line.Product.Price,
			ImageURL:     line.Product.Image,
			Quantity:     line.Quantity,
			DateAdded:    line.AddedAt,
		})
	}
	return o
}

// HandleWebhook verifies a provider delivery and logs it. Orders are created
// by Complete, not here.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.payments.VerifyWebhook(payload, signature)
	if err != nil {
		return err
	}
	switch ev.Type {
	case payment.EventCheckoutCompleted:
		s.logger.Info().Str("event_id", ev.ID).Str("session_id", ev.SessionID).Msg("checkout session completed")
	default:
		s.logger.Info().Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("unhandled event type")
	}
	return nil
}
