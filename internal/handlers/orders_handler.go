package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Amadou-dot/restockd/internal/orders"
	"github.com/Amadou-dot/restockd/internal/validation"
)

func registerOrderRoutes(g *gin.RouterGroup, cfg HandlerConfig) {
	g.GET("", func(c *gin.Context) {
		list, err := cfg.Orders.ListByUser(c.Request.Context(), identity(c).UserID)
		if err != nil {
			fail(c, "Error fetching orders", err)
			return
		}
		summaries := make([]orders.Summary, len(list))
		for i := range list {
			summaries[i] = list[i].Summary()
		}
		respond(c, http.StatusOK, "Orders retrieved successfully", summaries)
	})

	g.GET("/:id", func(c *gin.Context) {
		o, err := cfg.Orders.GetForUser(c.Request.Context(), identity(c).UserID, c.Param("id"))
		if err != nil {
			fail(c, "Error fetching order", err)
			return
		}
		respond(c, http.StatusOK, "Order retrieved successfully", o.Summary())
	})

	g.POST("/:id/cancel", func(c *gin.Context) {
		o, err := cfg.Orders.Cancel(c.Request.Context(), identity(c).UserID, c.Param("id"))
		if err != nil {
			fail(c, "Error cancelling order", err)
			return
		}
		respond(c, http.StatusOK, "Order cancelled successfully", o.Summary())
	})

	// placeOrder opens a hosted checkout for the cart; the order itself is
	// written by /complete once the payment has settled.
	g.POST("/placeOrder", func(c *gin.Context) {
		session, err := cfg.Checkout.Start(c.Request.Context(), identity(c))
		if err != nil {
			fail(c, "Error creating Stripe session", err)
			return
		}
		respond(c, http.StatusOK, "Order placed successfully", session)
	})

	g.POST("/complete", func(c *gin.Context) {
		var req validation.CompleteOrderRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			fail(c, "Error creating order", err)
			return
		}
		res, err := cfg.Checkout.Complete(c.Request.Context(), identity(c), req.SessionID)
		if err != nil {
			fail(c, "Error creating order", err)
			return
		}
		respond(c, http.StatusOK, "Order created successfully", res)
	})
}

func registerWebhookRoutes(g *gin.RouterGroup, cfg HandlerConfig) {
	g.POST("/stripe", func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
		if err != nil {
			fail(c, "Error reading webhook", validation.Errorf("Invalid request body: %v", err))
			return
		}
		if err := cfg.Checkout.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
			fail(c, "Webhook handler failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	})
}
