package order

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gocql/gocql"
	"github.com/shopspring/decimal"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

const maxCouponCASAttempts = 8

// ScyllaCoupons keeps coupons in the orders keyspace. used_count only moves
// through lightweight transactions, and coupon_usage records which orders
// redeemed a code so a release is applied at most once.
type ScyllaCoupons struct {
	session *gocql.Session
}

func NewScyllaCoupons(session *gocql.Session) *ScyllaCoupons {
	return &ScyllaCoupons{session: session}
}

func (s *ScyllaCoupons) Get(ctx context.Context, code string) (models.Coupon, error) {
	var (
		c                               models.Coupon
		kind, value, minAmount, maxDisc string
	)
	err := s.session.Query(`
		SELECT code, type, value, min_amount, max_discount, max_uses, used_count,
		       max_uses_per_user, starts_at, expires_at, active
		FROM coupons WHERE code = ?`, code,
	).WithContext(ctx).Consistency(gocql.Quorum).Scan(
		&c.Code, &kind, &value, &minAmount, &maxDisc, &c.MaxUses, &c.UsedCount,
		&c.MaxUsesPerUser, &c.StartsAt, &c.ExpiresAt, &c.Active,
	)
	if errors.Is(err, gocql.ErrNotFound) {
		return models.Coupon{}, invalidCoupon(code, "unknown coupon "+code)
	}
	if err != nil {
		return models.Coupon{}, fmt.Errorf("select coupon %s: %w", code, err)
	}
	c.Type = models.CouponType(kind)
	if c.Value, err = decimal.NewFromString(value); err != nil {
		return models.Coupon{}, fmt.Errorf("coupon %s value: %w", code, err)
	}
	if minAmount != "" {
		if c.MinAmount, err = decimal.NewFromString(minAmount); err != nil {
			return models.Coupon{}, fmt.Errorf("coupon %s min_amount: %w", code, err)
		}
	}
	if maxDisc != "" {
		d, err := decimal.NewFromString(maxDisc)
		if err != nil {
			return models.Coupon{}, fmt.Errorf("coupon %s max_discount: %w", code, err)
		}
		c.MaxDiscount = &d
	}
	return c, nil
}

// Put creates or replaces a coupon definition, keeping its used_count.
func (s *ScyllaCoupons) Put(ctx context.Context, c models.Coupon) error {
	maxDisc := ""
	if c.MaxDiscount != nil {
		maxDisc = c.MaxDiscount.String()
	}
	if _, err := s.session.Query(`INSERT INTO coupons (code, used_count) VALUES (?, 0) IF NOT EXISTS`, c.Code).
		WithContext(ctx).MapScanCAS(map[string]interface{}{}); err != nil {
		return fmt.Errorf("create coupon %s: %w", c.Code, err)
	}
	if err := s.session.Query(`
		UPDATE coupons SET type = ?, value = ?, min_amount = ?, max_discount = ?, max_uses = ?,
		                   max_uses_per_user = ?, starts_at = ?, expires_at = ?, active = ?
		WHERE code = ?`,
		string(c.Type), c.Value.String(), c.MinAmount.String(), maxDisc, c.MaxUses,
		c.MaxUsesPerUser, c.StartsAt, c.ExpiresAt, c.Active, c.Code,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("upsert coupon %s: %w", c.Code, err)
	}
	return nil
}

func (s *ScyllaCoupons) UsesBy(ctx context.Context, code, userID string) (int, error) {
	var n int
	if err := s.session.Query(`SELECT COUNT(*) FROM coupon_usage WHERE code = ? AND user_id = ?`,
		code, userID,
	).WithContext(ctx).Scan(&n); err != nil {
		return 0, fmt.Errorf("count coupon usage %s: %w", code, err)
	}
	return n, nil
}

func (s *ScyllaCoupons) Redeem(ctx context.Context, code, userID, orderNumber string) error {
	c, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	if c.MaxUsesPerUser > 0 {
		uses, err := s.UsesBy(ctx, code, userID)
		if err != nil {
			return err
		}
		if uses >= c.MaxUsesPerUser {
			return invalidCoupon(code, "you have already used this coupon")
		}
	}

	if err := s.casUsedCount(ctx, code, c.UsedCount, c.MaxUses, 1); err != nil {
		return err
	}
	if err := s.session.Query(`
		INSERT INTO coupon_usage (code, user_id, order_number, used_at) VALUES (?, ?, ?, toTimestamp(now()))`,
		code, userID, orderNumber,
	).WithContext(ctx).Exec(); err != nil {
		if uerr := s.casUsedCount(context.WithoutCancel(ctx), code, c.UsedCount+1, 0, -1); uerr != nil {
			log.Printf("❌ coupon %s used_count left incremented for order %s: %v", code, orderNumber, uerr)
		}
		return fmt.Errorf("record coupon usage %s: %w", code, err)
	}
	return nil
}

func (s *ScyllaCoupons) Release(ctx context.Context, code, userID, orderNumber string) error {
	applied, err := s.session.Query(`
		DELETE FROM coupon_usage WHERE code = ? AND user_id = ? AND order_number = ? IF EXISTS`,
		code, userID, orderNumber,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("delete coupon usage %s: %w", code, err)
	}
	if !applied {
		return nil
	}
	c, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	return s.casUsedCount(ctx, code, c.UsedCount, 0, -1)
}

// casUsedCount moves used_count by delta starting from current. maxUses > 0
// caps increments.
func (s *ScyllaCoupons) casUsedCount(ctx context.Context, code string, current, maxUses, delta int) error {
	for attempt := 0; attempt < maxCouponCASAttempts; attempt++ {
		next := current + delta
		if delta > 0 && maxUses > 0 && next > maxUses {
			return invalidCoupon(code, "coupon usage limit reached")
		}
		if next < 0 {
			return nil
		}
		var seen int
		applied, err := s.session.Query(`UPDATE coupons SET used_count = ? WHERE code = ? IF used_count = ?`,
			next, code, current,
		).WithContext(ctx).ScanCAS(&seen)
		if err != nil {
			return fmt.Errorf("cas coupon %s: %w", code, err)
		}
		if applied {
			return nil
		}
		current = seen
	}
	return apperr.New(apperr.ErrVersionConflict, "coupon "+code+" is being redeemed concurrently", nil)
}
