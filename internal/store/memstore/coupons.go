package memstore

import (
	"context"
	"sync"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

type Coupons struct {
	mu      sync.Mutex
	coupons map[string]models.Coupon
	// code -> user -> order numbers
	usage map[string]map[string]map[string]bool
}

func NewCoupons(coupons ...models.Coupon) *Coupons {
	s := &Coupons{
		coupons: make(map[string]models.Coupon),
		usage:   make(map[string]map[string]map[string]bool),
	}
	for _, c := range coupons {
		s.coupons[c.Code] = c
	}
	return s
}

// Put creates or replaces a coupon definition, keeping its used count.
func (s *Coupons) Put(_ context.Context, c models.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.coupons[c.Code]; ok {
		c.UsedCount = prev.UsedCount
	}
	s.coupons[c.Code] = c
	return nil
}

func (s *Coupons) Get(_ context.Context, code string) (models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[code]
	if !ok {
		return models.Coupon{}, apperr.New(apperr.ErrInvalidCoupon, "unknown coupon "+code, map[string]any{"code": code})
	}
	return c, nil
}

func (s *Coupons) UsesBy(_ context.Context, code, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.usage[code][userID]), nil
}

func (s *Coupons) Redeem(_ context.Context, code, userID, orderNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[code]
	if !ok {
		return apperr.New(apperr.ErrInvalidCoupon, "unknown coupon "+code, nil)
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return apperr.New(apperr.ErrInvalidCoupon, "coupon usage limit reached", map[string]any{"code": code})
	}
	if c.MaxUsesPerUser > 0 && len(s.usage[code][userID]) >= c.MaxUsesPerUser {
		return apperr.New(apperr.ErrInvalidCoupon, "you have already used this coupon", map[string]any{"code": code})
	}
	c.UsedCount++
	s.coupons[code] = c
	if s.usage[code] == nil {
		s.usage[code] = make(map[string]map[string]bool)
	}
	if s.usage[code][userID] == nil {
		s.usage[code][userID] = make(map[string]bool)
	}
	s.usage[code][userID][orderNumber] = true
	return nil
}

func (s *Coupons) Release(_ context.Context, code, userID, orderNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usage[code][userID][orderNumber] {
		return nil
	}
	delete(s.usage[code][userID], orderNumber)
	c := s.coupons[code]
	if c.UsedCount > 0 {
		c.UsedCount--
	}
	s.coupons[code] = c
	return nil
}
