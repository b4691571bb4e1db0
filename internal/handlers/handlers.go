// Package handlers exposes the storefront over HTTP with gin.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/Amadou-dot/restockd/internal/auth"
	"github.com/Amadou-dot/restockd/internal/cart"
	"github.com/Amadou-dot/restockd/internal/catalog"
	"github.com/Amadou-dot/restockd/internal/checkout"
	"github.com/Amadou-dot/restockd/internal/orders"
	"github.com/Amadou-dot/restockd/internal/payment"
	"github.com/Amadou-dot/restockd/internal/validation"
)

type CatalogService interface {
	List(ctx context.Context, page int) (catalog.Page, error)
	ListOwned(ctx context.Context, ownerID string, page int) (catalog.Page, error)
	Get(ctx context.Context, id string) (*catalog.Product, error)
	Create(ctx context.Context, ownerID string, in catalog.Input, img *catalog.Image) (*catalog.Product, error)
	Update(ctx context.Context, ownerID, id string, in catalog.Input, img *catalog.Image) (*catalog.Product, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type CartService interface {
	Get(ctx context.Context, userID string) (*cart.View, error)
	Add(ctx context.Context, userID, productID string, qty int) (*cart.View, error)
	Increment(ctx context.Context, userID, productID string) (*cart.View, error)
	Decrement(ctx context.Context, userID, productID string) (*cart.View, error)
	Clear(ctx context.Context, userID string) error
}

type CheckoutService interface {
	Start(ctx context.Context, user auth.Identity) (*payment.Session, error)
	Complete(ctx context.Context, user auth.Identity, sessionID string) (*checkout.Result, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type OrderHistory interface {
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
	GetForUser(ctx context.Context, userID, orderID string) (*orders.Order, error)
	Cancel(ctx context.Context, userID, orderID string) (*orders.Order, error)
}

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	Catalog  CatalogService
	Cart     CartService
	Checkout CheckoutService
	Orders   OrderHistory

	Validator *validatorv10.Validate
}

// RegisterRoutes mounts every API route on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Validator == nil {
		cfg.Validator = validation.New()
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	registerProductRoutes(api, cfg)
	registerAdminRoutes(api.Group("/admin", requireIdentity()), cfg)
	registerCartRoutes(api.Group("/cart", requireIdentity()), cfg)
	registerOrderRoutes(api.Group("/orders", requireIdentity()), cfg)
	registerWebhookRoutes(api.Group("/webhooks"), cfg)
}

// requireIdentity rejects requests without a forwarded user.
func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := auth.FromContext(c); err != nil {
			fail(c, "User not found", err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) auth.Identity {
	id, _ := auth.FromContext(c)
	return id
}

// pageParam reads ?page=, defaulting to 1.
func pageParam(c *gin.Context) (int, error) {
	raw := c.Query("page")
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validation.Field("page", "page must be a number")
	}
	return page, nil
}
