package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
	"shoemart_back_end/internal/order"
)

// CouponAdmin is implemented by order.ScyllaCoupons and memstore.Coupons.
type CouponAdmin interface {
	Put(ctx context.Context, c models.Coupon) error
}

type couponRequest struct {
	Type           models.CouponType `json:"type" binding:"required"`
	Value          decimal.Decimal   `json:"value"`
	MinAmount      decimal.Decimal   `json:"min_amount"`
	MaxDiscount    *decimal.Decimal  `json:"max_discount"`
	MaxUses        int               `json:"max_uses" binding:"min=0"`
	MaxUsesPerUser int               `json:"max_uses_per_user" binding:"min=0"`
	StartsAt       time.Time         `json:"starts_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
	Active         *bool             `json:"active"`
}

func (r couponRequest) validate() error {
	switch r.Type {
	case models.CouponPercentage:
		if !r.Value.IsPositive() || r.Value.GreaterThan(decimal.NewFromInt(100)) {
			return apperr.Validation("value", "percentage must be between 0 and 100")
		}
	case models.CouponFixed:
		if !r.Value.IsPositive() {
			return apperr.Validation("value", "amount must be positive")
		}
	case models.CouponFreeShipping:
	default:
		return apperr.Validation("type", "type must be percentage, fixed or free_shipping")
	}
	if r.MinAmount.IsNegative() {
		return apperr.Validation("min_amount", "minimum amount cannot be negative")
	}
	if r.MaxDiscount != nil && !r.MaxDiscount.IsPositive() {
		return apperr.Validation("max_discount", "max discount must be positive")
	}
	if !r.ExpiresAt.IsZero() && !r.StartsAt.IsZero() && !r.ExpiresAt.After(r.StartsAt) {
		return apperr.Validation("expires_at", "coupon expires before it starts")
	}
	return nil
}

// PutCoupon creates or replaces the coupon named in the path. Redemptions
// already counted are kept.
func (h *Handlers) PutCoupon(c *gin.Context) {
	if h.Coupons == nil {
		fail(c, apperr.Validation("coupon", "coupons are not available"))
		return
	}
	code := order.NormalizeCode(c.Param("code"))
	if code == "" {
		fail(c, apperr.Validation("code", "code is required"))
		return
	}
	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	if err := req.validate(); err != nil {
		fail(c, err)
		return
	}
	cp := models.Coupon{
		Code:           code,
		Type:           req.Type,
		Value:          req.Value,
		MinAmount:      req.MinAmount,
		MaxDiscount:    req.MaxDiscount,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
		StartsAt:       req.StartsAt,
		ExpiresAt:      req.ExpiresAt,
		Active:         req.Active == nil || *req.Active,
	}
	if err := h.Coupons.Put(c.Request.Context(), cp); err != nil {
		fail(c, err)
		return
	}
	log.Printf("🎟️ Coupon %s saved by %s", code, c.GetString("user_id"))
	c.JSON(http.StatusOK, cp)
}
