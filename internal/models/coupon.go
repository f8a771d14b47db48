package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponPercentage   CouponType = "percentage"
	CouponFixed        CouponType = "fixed"
	CouponFreeShipping CouponType = "free_shipping"
)

type Coupon struct {
	Code      string          `json:"code"`
	Type      CouponType      `json:"type"`
	Value     decimal.Decimal `json:"value"`
	MinAmount decimal.Decimal `json:"min_amount"`
	// MaxDiscount caps percentage coupons. Nil means no cap.
	MaxDiscount    *decimal.Decimal `json:"max_discount,omitempty"`
	MaxUses        int              `json:"max_uses"` // 0 = unlimited
	UsedCount      int              `json:"used_count"`
	MaxUsesPerUser int              `json:"max_uses_per_user"` // 0 = unlimited
	StartsAt       time.Time        `json:"starts_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
	Active         bool             `json:"active"`
}

// CouponQuote is what a valid coupon takes off an order.
type CouponQuote struct {
	Code           string          `json:"code"`
	Type           CouponType      `json:"type"`
	Discount       decimal.Decimal `json:"discount"`
	WaivesShipping bool            `json:"waives_shipping"`
}
