// Package handlers exposes the marketplace over HTTP.
package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/auth"
	"shoemart_back_end/internal/cart"
	"shoemart_back_end/internal/catalog"
	"shoemart_back_end/internal/middleware"
	"shoemart_back_end/internal/models"
	"shoemart_back_end/internal/order"
	"shoemart_back_end/internal/payment"
	"shoemart_back_end/internal/services"
	"shoemart_back_end/internal/ticket"
)

type Identity interface {
	RequestOTP(ctx context.Context, phone string) error
	VerifyOTP(ctx context.Context, phone, code string) (auth.Session, error)
	Logout(ctx context.Context, claims auth.Claims) error
	AssignRole(ctx context.Context, userID string, role models.Role, vendorID string) (models.User, error)
}

type Carts interface {
	ComputeView(ctx context.Context, owner models.CartOwner) (models.CartView, error)
	AddItem(ctx context.Context, owner models.CartOwner, key models.VariantKey, qty int) (models.CartView, error)
	UpdateItem(ctx context.Context, owner models.CartOwner, key models.VariantKey, qty int) (models.CartView, error)
	RemoveItem(ctx context.Context, owner models.CartOwner, key models.VariantKey) (models.CartView, error)
	Clear(ctx context.Context, owner models.CartOwner) error
	Merge(ctx context.Context, sessionID, userID string) (models.CartView, error)
}

type Orders interface {
	PlaceOrder(ctx context.Context, in order.PlaceOrderInput) (order.Placement, error)
	QuoteCoupon(ctx context.Context, userID, code string) (models.CouponQuote, error)
	Get(ctx context.Context, number string, actor models.Actor) (models.Order, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Order, error)
	ListForVendor(ctx context.Context, vendorID string, limit int) ([]models.Order, error)
	CancelOrder(ctx context.Context, number string, actor models.Actor) (models.Order, error)
	UpdateItemStatus(ctx context.Context, number, itemID string, upd order.StatusUpdate, actor models.Actor) (models.Order, error)
	VerifyPayment(ctx context.Context, number string, payload payment.Payload, actor models.Actor) (models.PaymentStatus, error)
	HandlePaymentWebhook(ctx context.Context, body []byte, signature string) error
}

type Tickets interface {
	CreateTicket(ctx context.Context, in ticket.CreateInput) (models.Ticket, error)
	StartProgress(ctx context.Context, id string) (models.Ticket, error)
	ResolveTicket(ctx context.Context, id, resolution string, accept bool) (models.Ticket, error)
	Get(ctx context.Context, id string, actor models.Actor) (models.Ticket, error)
	ListForVendor(ctx context.Context, vendorID string, limit int) ([]models.Ticket, error)
	ListForOrder(ctx context.Context, orderNumber string) ([]models.Ticket, error)
}

// OrderSearch backs the operator search. services.OrderIndex and the memory
// order store both fit.
type OrderSearch interface {
	Search(ctx context.Context, query string, limit int) ([]models.Order, error)
}

type Handlers struct {
	Identity Identity
	Carts    Carts
	Watcher  cart.Watcher
	Orders   Orders
	Catalog  catalog.Catalog
	Tickets  Tickets
	Media    services.Media
	Search   OrderSearch
	Coupons  CouponAdmin
	// AllowedOrigins restricts the cart websocket. Empty allows any origin.
	AllowedOrigins []string
}

func fail(c *gin.Context, err error) { middleware.RespondError(c, err) }

func bindError(err error) error {
	return apperr.New(apperr.ErrValidation, "invalid request body", map[string]any{"reason": err.Error()})
}

func queryLimit(c *gin.Context) int {
	n, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	return n
}

func requireUser(c *gin.Context) (auth.Claims, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		fail(c, apperr.ErrUnauthorized)
	}
	return claims, ok
}

// vendorFor is the vendor an action is taken for: the caller's own, or for
// admins the vendor_id they name.
func vendorFor(c *gin.Context, requested string) (string, error) {
	a := middleware.Actor(c)
	if a.IsVendor() {
		if requested != "" && requested != a.VendorID {
			return "", apperr.New(apperr.ErrForbidden, "cannot act for another vendor", nil)
		}
		return a.VendorID, nil
	}
	if a.IsAdmin() && strings.TrimSpace(requested) != "" {
		return strings.TrimSpace(requested), nil
	}
	if a.IsAdmin() {
		return "", apperr.Validation("vendor_id", "vendor_id is required")
	}
	return "", apperr.New(apperr.ErrForbidden, "vendor accounts only", nil)
}

func isNotFound(err error) bool {
	return apperr.KindOf(err) == apperr.KindNotFound
}

var errNoSearch = errors.New("order search is not configured")
