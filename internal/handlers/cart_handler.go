package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Amadou-dot/restockd/internal/validation"
)

func registerCartRoutes(g *gin.RouterGroup, cfg HandlerConfig) {
	g.GET("", func(c *gin.Context) {
		view, err := cfg.Cart.Get(c.Request.Context(), identity(c).UserID)
		if err != nil {
			fail(c, "Error fetching cart", err)
			return
		}
		respond(c, http.StatusOK, "Cart retrieved successfully", view)
	})

	g.DELETE("", func(c *gin.Context) {
		userID := identity(c).UserID
		if err := cfg.Cart.Clear(c.Request.Context(), userID); err != nil {
			fail(c, "Error clearing cart", err)
			return
		}
		view, err := cfg.Cart.Get(c.Request.Context(), userID)
		if err != nil {
			fail(c, "Error clearing cart", err)
			return
		}
		respond(c, http.StatusOK, "Cart cleared successfully", view)
	})

	g.POST("/:productId/add", func(c *gin.Context) {
		var req validation.AddToCartRequest
		if err := validation.BindOptional(c, &req, cfg.Validator); err != nil {
			fail(c, "Error adding item to cart", err)
			return
		}
		view, err := cfg.Cart.Add(c.Request.Context(), identity(c).UserID, c.Param("productId"), req.QuantityOrDefault())
		if err != nil {
			fail(c, "Error adding item to cart", err)
			return
		}
		respond(c, http.StatusOK, "Item added to cart successfully", view)
	})

	g.POST("/:productId/increment", func(c *gin.Context) {
		view, err := cfg.Cart.Increment(c.Request.Context(), identity(c).UserID, c.Param("productId"))
		if err != nil {
			fail(c, "Error incrementing cart item", err)
			return
		}
		respond(c, http.StatusOK, "Cart item incremented successfully", view)
	})

	g.POST("/:productId/decrement", func(c *gin.Context) {
		view, err := cfg.Cart.Decrement(c.Request.Context(), identity(c).UserID, c.Param("productId"))
		if err != nil {
			fail(c, "Error decrementing cart item", err)
			return
		}
		respond(c, http.StatusOK, "Cart item decremented successfully", view)
	})
}
