// Package cart implements the per-user cart aggregate and its persistence.
package cart

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be greater than zero")
	ErrItemNotFound     = errors.New("item not found in cart")
	ErrConcurrentUpdate = errors.New("cart was modified by another request")
)

// Item is one cart line. Quantity is always at least 1.
type Item struct {
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Cart holds a user's lines in insertion order plus two rollups that mirror
// the lines: TotalQuantity and TotalPrice.
type Cart struct {
	UserID        string
	Items         []Item
	TotalQuantity int
	TotalPrice    decimal.Decimal
	LastUpdated   time.Time
	CreatedAt     time.Time

	// Version is the optimistic concurrency token; 0 means never saved.
	Version int64
}

func New(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:      userID,
		Items:       []Item{},
		TotalPrice:  decimal.Zero,
		LastUpdated: now,
		CreatedAt:   now,
	}
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Has reports whether the cart has a line for productID.
func (c *Cart) Has(productID string) bool { return c.find(productID) >= 0 }

func (c *Cart) find(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// AddOrIncrement adds qty units of a product priced at price.
func (c *Cart) AddOrIncrement(productID string, price decimal.Decimal, qty int, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if i := c.find(productID); i >= 0 {
		c.Items[i].Quantity += qty
	} else {
		c.Items = append(c.Items, Item{ProductID: productID, Quantity: qty, AddedAt: now})
	}
	c.TotalQuantity += qty
	c.TotalPrice = c.TotalPrice.Add(price.Mul(decimal.NewFromInt(int64(qty))))
	c.LastUpdated = now
	return nil
}

// DecrementOrRemove takes one unit off a line, removing the line at zero.
// currentPrice is the catalog price now, not the price when added; callers
// pass zero for products that no longer exist.
func (c *Cart) DecrementOrRemove(productID string, currentPrice decimal.Decimal, now time.Time) error {
	i := c.find(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	if c.Items[i].Quantity > 1 {
		c.Items[i].Quantity--
	} else {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
	c.TotalQuantity--
	c.TotalPrice = c.TotalPrice.Sub(currentPrice)
	c.LastUpdated = now
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear(now time.Time) {
	c.Items = []Item{}
	c.TotalQuantity = 0
	c.TotalPrice = decimal.Zero
	c.LastUpdated = now
}

// Recompute rebuilds both rollups from prices, dropping lines whose product
// is absent from prices. It reports whether anything changed.
func (c *Cart) Recompute(prices map[string]decimal.Decimal) bool {
	kept := make([]Item, 0, len(c.Items))
	quantity := 0
	total := decimal.Zero
	for _, it := range c.Items {
		price, ok := prices[it.ProductID]
		if !ok {
			continue
		}
		kept = append(kept, it)
		quantity += it.Quantity
		total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	changed := len(kept) != len(c.Items) ||
		quantity != c.TotalQuantity ||
		!total.Equal(c.TotalPrice)

	c.Items = kept
	c.TotalQuantity = quantity
	c.TotalPrice = total
	return changed
}

// ProductIDs lists the products referenced by the cart.
func (c *Cart) ProductIDs() []string {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ProductID
	}
	return ids
}
