package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

var hundred = decimal.NewFromInt(100)

// CouponBook stores coupons and their redemptions. Get returns
// apperr.ErrInvalidCoupon for unknown codes. Redeem must refuse once
// MaxUses is reached, even under concurrent checkouts.
type CouponBook interface {
	Get(ctx context.Context, code string) (models.Coupon, error)
	UsesBy(ctx context.Context, code, userID string) (int, error)
	Redeem(ctx context.Context, code, userID, orderNumber string) error
	Release(ctx context.Context, code, userID, orderNumber string) error
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func invalidCoupon(code, reason string) error {
	return apperr.New(apperr.ErrInvalidCoupon, reason, map[string]any{"code": code})
}

// QuoteCoupon checks c against a cart and computes the discount. Fixed
// discounts never exceed the subtotal and free shipping takes off exactly
// the shipping charges, so the order total stays non negative.
func QuoteCoupon(c models.Coupon, userUses int, subtotal, shipping decimal.Decimal, now time.Time) (models.CouponQuote, error) {
	switch {
	case !c.Active:
		return models.CouponQuote{}, invalidCoupon(c.Code, "coupon is no longer active")
	case !c.StartsAt.IsZero() && now.Before(c.StartsAt):
		return models.CouponQuote{}, invalidCoupon(c.Code, "coupon is not valid yet")
	case !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt):
		return models.CouponQuote{}, invalidCoupon(c.Code, "coupon has expired")
	case c.MaxUses > 0 && c.UsedCount >= c.MaxUses:
		return models.CouponQuote{}, invalidCoupon(c.Code, "coupon usage limit reached")
	case subtotal.LessThan(c.MinAmount):
		return models.CouponQuote{}, invalidCoupon(c.Code, "minimum order value is "+c.MinAmount.StringFixed(2))
	case c.MaxUsesPerUser > 0 && userUses >= c.MaxUsesPerUser:
		return models.CouponQuote{}, invalidCoupon(c.Code, "you have already used this coupon")
	}

	q := models.CouponQuote{Code: c.Code, Type: c.Type}
	switch c.Type {
	case models.CouponPercentage:
		q.Discount = subtotal.Mul(c.Value).Div(hundred).Round(2)
		if c.MaxDiscount != nil && q.Discount.GreaterThan(*c.MaxDiscount) {
			q.Discount = *c.MaxDiscount
		}
	case models.CouponFixed:
		q.Discount = decimal.Min(c.Value, subtotal)
	case models.CouponFreeShipping:
		q.Discount = shipping
		q.WaivesShipping = true
	default:
		return models.CouponQuote{}, invalidCoupon(c.Code, "unknown coupon type")
	}
	return q, nil
}
