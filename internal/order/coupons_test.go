package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

func TestQuoteCoupon(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cap150 := decimal.NewFromInt(150)
	base := models.Coupon{
		Code: "SHOE10", Type: models.CouponPercentage, Value: decimal.NewFromInt(10),
		MinAmount: decimal.NewFromInt(500), StartsAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour),
		Active: true,
	}
	with := func(fn func(*models.Coupon)) models.Coupon {
		c := base
		fn(&c)
		return c
	}

	cases := []struct {
		name     string
		coupon   models.Coupon
		uses     int
		subtotal int64
		want     string
		invalid  bool
	}{
		{"percentage", base, 0, 2000, "200", false},
		{"percentage capped", with(func(c *models.Coupon) { c.MaxDiscount = &cap150 }), 0, 2000, "150", false},
		{"fixed", with(func(c *models.Coupon) { c.Type = models.CouponFixed; c.Value = decimal.NewFromInt(300) }), 0, 2000, "300", false},
		{"fixed clamped", with(func(c *models.Coupon) {
			c.Type = models.CouponFixed
			c.Value = decimal.NewFromInt(5000)
			c.MinAmount = decimal.Zero
		}), 0, 400, "400", false},
		{"free shipping", with(func(c *models.Coupon) { c.Type = models.CouponFreeShipping }), 0, 2000, "79", false},
		{"inactive", with(func(c *models.Coupon) { c.Active = false }), 0, 2000, "", true},
		{"not started", with(func(c *models.Coupon) { c.StartsAt = now.Add(time.Minute) }), 0, 2000, "", true},
		{"expired", with(func(c *models.Coupon) { c.ExpiresAt = now.Add(-time.Minute) }), 0, 2000, "", true},
		{"used up", with(func(c *models.Coupon) { c.MaxUses = 5; c.UsedCount = 5 }), 0, 2000, "", true},
		{"below minimum", base, 0, 499, "", true},
		{"per user limit", with(func(c *models.Coupon) { c.MaxUsesPerUser = 1 }), 1, 2000, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := QuoteCoupon(tc.coupon, tc.uses, decimal.NewFromInt(tc.subtotal), decimal.NewFromInt(79), now)
			if tc.invalid {
				assert.ErrorIs(t, err, apperr.ErrInvalidCoupon)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tc.want).Equal(q.Discount), "got %s", q.Discount)
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SHOE10", NormalizeCode("  shoe10 "))
}
