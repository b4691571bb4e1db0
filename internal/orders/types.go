package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Amadou-dot/restockd/internal/aws"
)

// Order statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Item is a snapshot of a cart line taken when the order was placed.
// Later catalog edits do not touch it.
type Item struct {
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	ProductPrice decimal.Decimal `json:"productPrice"`
	ImageURL     string          `json:"imageUrl"`
	Quantity     int             `json:"quantity"`
	DateAdded    time.Time       `json:"dateAdded"`
}

// Order is an immutable record of a completed checkout. Only Status,
// InvoiceURL, Attempts and UpdatedAt change after creation.
type Order struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	Items            []Item          `json:"items"`
	Status           string          `json:"status"`
	TotalPrice       decimal.Decimal `json:"totalPrice"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	InvoiceURL       string          `json:"invoiceUrl,omitempty"`
	PaymentSessionID string          `json:"-"`
	CustomerEmail    string          `json:"-"`
	Attempts         int             `json:"-"`
}

// TotalItems is the sum of line quantities.
func (o *Order) TotalItems() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Summary is an order as listed to its owner.
type Summary struct {
	Order
	TotalItems int `json:"totalItems"`
}

func (o *Order) Summary() Summary {
	return Summary{Order: *o, TotalItems: o.TotalItems()}
}

// orderItem is the item stored in the Orders DynamoDB table.
type orderItem struct {
	OrderID          string      `dynamodbav:"order_id"` // PK
	UserID           string      `dynamodbav:"user_id"`  // GSI hash
	Status           string      `dynamodbav:"status"`
	TotalPrice       aws.Decimal `dynamodbav:"total_price"`
	Items            []orderLine `dynamodbav:"items"`
	CreatedAt        time.Time   `dynamodbav:"created_at"` // GSI range
	UpdatedAt        time.Time   `dynamodbav:"updated_at"`
	InvoiceURL       string      `dynamodbav:"invoice_url,omitempty"`
	PaymentSessionID string      `dynamodbav:"payment_session_id,omitempty"`
	CustomerEmail    string      `dynamodbav:"customer_email,omitempty"`
	Attempts         int         `dynamodbav:"attempts,omitempty"`
}

type orderLine struct {
	ProductID    string      `dynamodbav:"product_id"`
	ProductName  string      `dynamodbav:"product_name"`
	ProductPrice aws.Decimal `dynamodbav:"product_price"`
	ImageURL     string      `dynamodbav:"image_url"`
	Quantity     int         `dynamodbav:"quantity"`
	DateAdded    time.Time   `dynamodbav:"date_added"`
}

func toItem(o Order) orderItem {
	it := orderItem{
		OrderID:          o.ID,
		UserID:           o.UserID,
		Status:           o.Status,
		TotalPrice:       aws.NewDecimal(o.TotalPrice),
		Items:            make([]orderLine, len(o.Items)),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		InvoiceURL:       o.InvoiceURL,
		PaymentSessionID: o.PaymentSessionID,
		CustomerEmail:    o.CustomerEmail,
		Attempts:         o.Attempts,
	}
	for i, l := range o.Items {
		it.Items[i] = orderLine{
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			ProductPrice: aws.NewDecimal(l.ProductPrice),
			ImageURL:     l.ImageURL,
			Quantity:     l.Quantity,
			DateAdded:    l.DateAdded,
		}
	}
	return it
}

func (it orderItem) order() Order {
	o := Order{
		ID:               it.OrderID,
		UserID:           it.UserID,
		Status:           it.Status,
		TotalPrice:       it.TotalPrice.Value(),
		Items:            make([]Item, len(it.Items)),
		CreatedAt:        it.CreatedAt,
		UpdatedAt:        it.UpdatedAt,
		InvoiceURL:       it.InvoiceURL,
		PaymentSessionID: it.PaymentSessionID,
		CustomerEmail:    it.CustomerEmail,
		Attempts:         it.Attempts,
	}
	for i, l := range it.Items {
		o.Items[i] = Item{
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			ProductPrice: l.ProductPrice.Value(),
			ImageURL:     l.ImageURL,
			Quantity:     l.Quantity,
			DateAdded:    l.DateAdded,
		}
	}
	return o
}
