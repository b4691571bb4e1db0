package cart

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Amadou-dot/restockd/internal/catalog"
)

// Products is the catalog lookup the cart needs.
type Products interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
	GetMany(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

// Line is a cart line joined with its current product record.
type Line struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
	AddedAt  time.Time       `json:"addedAt"`
}

// View is a cart with fresh totals, as returned to clients.
type View struct {
	UserID        string          `json:"userId"`
	Items         []Line          `json:"items"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

func (v *View) IsEmpty() bool { return len(v.Items) == 0 }

// Service runs cart operations for one user at a time. Every mutation is a
// load, change, save cycle guarded by the cart version.
type Service struct {
	repo     Repository
	products Products
	logger   zerolog.Logger
	nowFunc  func() time.Time
}

func NewService(repo Repository, products Products, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		products: products,
		logger:   logger.With().Str("component", "cart").Logger(),
		nowFunc:  time.Now,
	}
}

// Get returns the cart with totals recomputed against current prices.
// Lines for deleted products are dropped and corrected totals persisted.
// A user without a cart gets an empty, unsaved one.
func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return &View{UserID: userID, Items: []Line{}, TotalPrice: decimal.Zero}, nil
	}
	return s.fresh(ctx, c)
}

// Add puts qty units of productID in the cart, creating the cart on first use.
func (s *Service) Add(ctx context.Context, userID, productID string, qty int) (*View, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, catalog.ErrProductNotFound
	}

	now := s.nowFunc().UTC()
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = New(userID, now)
	}
	if err := c.AddOrIncrement(p.ID, p.Price, qty, now); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return s.fresh(ctx, c)
}

// Increment adds one unit to a line already in the cart.
func (s *Service) Increment(ctx context.Context, userID, productID string) (*View, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil || !c.Has(productID) {
		return nil, ErrItemNotFound
	}
	return s.Add(ctx, userID, productID, 1)
}

// Decrement removes one unit of productID, dropping the line at zero.
func (s *Service) Decrement(ctx context.Context, userID, productID string) (*View, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil || !c.Has(productID) {
		return nil, ErrItemNotFound
	}

	price := decimal.Zero
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		price = p.Price
	}

	if err := c.DecrementOrRemove(productID, price, s.nowFunc().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return s.fresh(ctx, c)
}

// Clear empties the cart. Users without a cart are left alone.
func (s *Service) Clear(ctx context.Context, userID string) error {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}
	c.Clear(s.nowFunc().UTC())
	return s.repo.Save(ctx, c)
}

func (s *Service) fresh(ctx context.Context, c *Cart) (*View, error) {
	products, err := s.products.GetMany(ctx, c.ProductIDs())
	if err != nil {
		return nil, err
	}
	prices := make(map[string]decimal.Decimal, len(products))
	for id, p := range products {
		prices[id] = p.Price
	}

	if c.Recompute(prices) {
		switch err := s.repo.Save(ctx, c); {
		case errors.Is(err, ErrConcurrentUpdate):
			// the concurrent writer's cart is healed on its next read
			s.logger.Debug().Str("user_id", c.UserID).Msg("skipped total correction after concurrent update")
		case err != nil:
			return nil, err
		default:
			s.logger.Info().Str("user_id", c.UserID).Msg("cart totals corrected")
		}
	}

	view := &View{
		UserID:        c.UserID,
		Items:         make([]Line, 0, len(c.Items)),
		TotalQuantity: c.TotalQuantity,
		TotalPrice:    c.TotalPrice,
		LastUpdated:   c.LastUpdated,
	}
	for _, it := range c.Items {
		view.Items = append(view.Items, Line{Product: products[it.ProductID], Quantity: it.Quantity, AddedAt: it.AddedAt})
	}
	return view, nil
}
