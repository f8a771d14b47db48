package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/middleware"
	"shoemart_back_end/internal/models"
	"shoemart_back_end/internal/order"
	"shoemart_back_end/internal/payment"
)

const maxWebhookBody = 64 << 10

type placeOrderRequest struct {
	ShippingAddress models.Address       `json:"shipping_address" binding:"required"`
	BillingAddress  *models.Address      `json:"billing_address"`
	PaymentMethod   models.PaymentMethod `json:"payment_method" binding:"required"`
	CouponCode      string               `json:"coupon_code"`
	Email           string               `json:"email" binding:"omitempty,email"`
}

// PlaceOrder checks out the signed-in user's cart.
func (h *Handlers) PlaceOrder(c *gin.Context) {
	claims, ok := requireUser(c)
	if !ok {
		return
	}
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	p, err := h.Orders.PlaceOrder(c.Request.Context(), order.PlaceOrderInput{
		UserID:        claims.UserID,
		Phone:         claims.Phone,
		Email:         req.Email,
		Shipping:      req.ShippingAddress,
		Billing:       req.BillingAddress,
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handlers) ListMyOrders(c *gin.Context) {
	claims, ok := requireUser(c)
	if !ok {
		return
	}
	orders, err := h.Orders.ListForUser(c.Request.Context(), claims.UserID, queryLimit(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// GetOrder serves customers, vendors (their items only) and admins.
func (h *Handlers) GetOrder(c *gin.Context) {
	o, err := h.Orders.Get(c.Request.Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) CancelOrder(c *gin.Context) {
	o, err := h.Orders.CancelOrder(c.Request.Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) VerifyPayment(c *gin.Context) {
	var req payment.Payload
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	status, err := h.Orders.VerifyPayment(c.Request.Context(), c.Param("id"), req, middleware.Actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "payment_status": status})
}

// PaymentWebhook receives gateway events. Only a bad signature is refused so
// the gateway does not retry events we chose to ignore.
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, apperr.Validation("body", "unreadable payload"))
		return
	}
	err = h.Orders.HandlePaymentWebhook(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
	case apperr.KindOf(err) == apperr.KindExternal || apperr.KindOf(err) == apperr.KindValidation:
		fail(c, err)
		return
	case isNotFound(err):
		// order of another environment
	default:
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
