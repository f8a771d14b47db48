package memstore

import (
	"context"
	"sort"
	"sync"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

type Orders struct {
	mu     sync.Mutex
	orders map[string]models.Order
}

func NewOrders() *Orders {
	return &Orders{orders: make(map[string]models.Order)}
}

func cloneOrder(o models.Order) models.Order {
	items := make([]models.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.History = append([]models.StatusChange(nil), it.History...)
		items[i] = it
	}
	o.Items = items
	return o
}

func (s *Orders) Create(_ context.Context, o models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.Number]; ok {
		return apperr.New(apperr.ErrDuplicateID, "order "+o.Number+" already exists", nil)
	}
	s.orders[o.Number] = cloneOrder(o)
	return nil
}

func (s *Orders) Get(_ context.Context, number string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[number]
	if !ok {
		return models.Order{}, apperr.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Orders) Update(_ context.Context, o models.Order, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.Number]
	if !ok {
		return apperr.ErrOrderNotFound
	}
	if cur.Version != expectedVersion {
		return apperr.ErrVersionConflict
	}
	s.orders[o.Number] = cloneOrder(o)
	return nil
}

func (s *Orders) list(limit int, keep func(models.Order) bool) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Orders) ListByUser(_ context.Context, userID string, limit int) ([]models.Order, error) {
	return s.list(limit, func(o models.Order) bool { return o.UserID == userID }), nil
}

func (s *Orders) ListByVendor(_ context.Context, vendorID string, limit int) ([]models.Order, error) {
	return s.list(limit, func(o models.Order) bool { return o.HasVendor(vendorID) }), nil
}

// Search is the memory stand-in for the order search index.
func (s *Orders) Search(_ context.Context, query string, limit int) ([]models.Order, error) {
	return s.list(limit, func(o models.Order) bool {
		return query == "" || o.Number == query || o.UserID == query || o.CustomerPhone == query || string(o.Status) == query
	}), nil
}
