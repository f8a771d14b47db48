package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shoemart_back_end/internal/handlers"
	"shoemart_back_end/internal/middleware"
)

func RegisterRoutes(r *gin.Engine, h *handlers.Handlers, authn middleware.Authenticator, limiter middleware.Limiter) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api", middleware.APIRateLimit(limiter))
	authRequired := middleware.AuthRequired(authn)

	// Auth
	a := api.Group("/auth")
	a.POST("/otp", h.RequestOTP)
	a.POST("/verify", h.VerifyOTP)
	a.POST("/logout", authRequired, h.Logout)

	// Cart (guests identified by X-Session-ID)
	cart := api.Group("/cart", middleware.OptionalAuth(authn))
	cart.GET("", h.GetCart)
	cart.GET("/ws", h.CartSocket)
	cart.DELETE("", h.ClearCart)
	cartWrites := cart.Group("", middleware.CartRateLimit(limiter))
	cartWrites.POST("/items", h.AddToCart)
	cartWrites.PUT("/items", h.UpdateCartItem)
	cartWrites.DELETE("/items", h.RemoveFromCart)
	cart.GET("/coupon/:code", authRequired, h.QuoteCoupon)

	// Orders
	orders := api.Group("/orders", authRequired)
	orders.POST("", middleware.CheckoutRateLimit(limiter), h.PlaceOrder)
	orders.GET("", h.ListMyOrders)
	orders.GET("/:id", h.GetOrder)
	orders.POST("/:id/cancel", h.CancelOrder)
	orders.POST("/:id/verify-payment", h.VerifyPayment)

	// Gateway callbacks are authenticated by their signature
	api.POST("/payments/webhook", h.PaymentWebhook)

	// Vendors
	vendor := api.Group("/vendor", authRequired, middleware.RequireVendor())
	vendor.GET("/orders", h.ListVendorOrders)
	vendor.GET("/orders/:id", h.GetOrder)
	vendor.PATCH("/orders/:id/items/:itemId", h.UpdateItemStatus)
	vendor.GET("/orders/:id/items/:itemId/label", h.ShippingLabel)
	vendor.PUT("/inventory", h.UpsertInventory)
	vendor.GET("/tickets", h.ListVendorTickets)

	// Tickets
	tickets := api.Group("/tickets", authRequired)
	tickets.POST("", h.CreateTicket)
	tickets.GET("/:id", h.GetTicket)
	tickets.POST("/:id/progress", middleware.RequireAdmin(), h.StartTicket)
	tickets.POST("/:id/resolve", middleware.RequireAdmin(), h.ResolveTicket)

	// Operations
	admin := api.Group("/admin", authRequired, middleware.RequireAdmin())
	admin.GET("/orders/search", h.SearchOrders)
	admin.GET("/orders/:id", h.GetOrder)
	admin.PATCH("/orders/:id/items/:itemId", h.UpdateItemStatus)
	admin.GET("/orders/:id/tickets", h.ListOrderTickets)
	admin.PUT("/users/:id/role", h.AssignRole)
	admin.PUT("/coupons/:code", h.PutCoupon)
}
