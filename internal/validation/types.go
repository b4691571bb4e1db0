package validation

// AddToCartRequest is the optional body of POST /api/cart/:id/add.
type AddToCartRequest struct {
	Quantity *int `json:"quantity,omitempty" validate:"omitempty,min=1"`
}

// QuantityOrDefault returns the requested quantity, or 1 when absent.
func (r AddToCartRequest) QuantityOrDefault() int {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

// CompleteOrderRequest is the payload for POST /api/orders/complete.
type CompleteOrderRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}
