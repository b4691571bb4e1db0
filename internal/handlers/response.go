package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Amadou-dot/restockd/internal/auth"
	"github.com/Amadou-dot/restockd/internal/cart"
	"github.com/Amadou-dot/restockd/internal/catalog"
	"github.com/Amadou-dot/restockd/internal/checkout"
	"github.com/Amadou-dot/restockd/internal/orders"
	"github.com/Amadou-dot/restockd/internal/payment"
	"github.com/Amadou-dot/restockd/internal/validation"
)

// Response is the envelope of every API reply.
type Response[T any] struct {
	Message string            `json:"message"`
	Data    *T                `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func respond[T any](c *gin.Context, status int, message string, data T) {
	c.JSON(status, Response[T]{Message: message, Data: &data})
}

type errorMapping struct {
	target  error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{auth.ErrUnauthenticated, http.StatusUnauthorized, "User not found"},
	{cart.ErrInvalidQuantity, http.StatusBadRequest, "Invalid quantity"},
	{checkout.ErrEmptyCart, http.StatusBadRequest, "Cart is empty"},
	{checkout.ErrPaymentIncomplete, http.StatusBadRequest, "Payment not completed"},
	{payment.ErrInvalidSignature, http.StatusBadRequest, "Webhook signature verification failed"},
	{catalog.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{checkout.ErrPaymentMismatch, http.StatusForbidden, "Session mismatch"},
	{catalog.ErrProductNotFound, http.StatusNotFound, "Product not found"},
	{cart.ErrItemNotFound, http.StatusNotFound, "Cart item not found"},
	{orders.ErrNotFound, http.StatusNotFound, "Order not found"},
	{cart.ErrConcurrentUpdate, http.StatusConflict, "Cart was updated by another request"},
	{checkout.ErrCheckoutInProgress, http.StatusConflict, "Checkout already in progress"},
	{orders.ErrStatusMismatch, http.StatusConflict, "Order cannot be cancelled in its current status"},
	{payment.ErrNotConfigured, http.StatusInternalServerError, "Payment system configuration error"},
}

// fail writes the error envelope. fallback is the message for errors
// without a client-facing mapping, which are logged and answered with 500.
func fail(c *gin.Context, fallback string, err error) {
	var ve *validation.Error
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, Response[struct{}]{Message: ve.Message, Error: ve.Error(), Fields: ve.Fields})
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				logFailure(c, err)
			}
			c.JSON(m.status, Response[struct{}]{Message: m.message, Error: err.Error()})
			return
		}
	}
	logFailure(c, err)
	c.JSON(http.StatusInternalServerError, Response[struct{}]{Message: fallback, Error: "Internal server error"})
}

func logFailure(c *gin.Context, err error) {
	_ = c.Error(err)
	zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
}
