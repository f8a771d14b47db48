package memstore

import (
	"context"
	"sort"
	"sync"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

type Tickets struct {
	mu      sync.Mutex
	tickets map[string]models.Ticket
}

func NewTickets() *Tickets {
	return &Tickets{tickets: make(map[string]models.Ticket)}
}

func cloneTicket(t models.Ticket) models.Ticket {
	t.Media = append([]models.TicketMedia(nil), t.Media...)
	if t.ResolvedAt != nil {
		at := *t.ResolvedAt
		t.ResolvedAt = &at
	}
	return t
}

func (s *Tickets) Create(_ context.Context, t models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ID]; ok {
		return apperr.New(apperr.ErrDuplicateID, "ticket "+t.ID+" already exists", nil)
	}
	s.tickets[t.ID] = cloneTicket(t)
	return nil
}

func (s *Tickets) Get(_ context.Context, id string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return models.Ticket{}, apperr.ErrTicketNotFound
	}
	return cloneTicket(t), nil
}

func (s *Tickets) Update(_ context.Context, t models.Ticket, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tickets[t.ID]
	if !ok {
		return apperr.ErrTicketNotFound
	}
	if cur.Version != expectedVersion {
		return apperr.ErrVersionConflict
	}
	s.tickets[t.ID] = cloneTicket(t)
	return nil
}

func (s *Tickets) list(limit int, keep func(models.Ticket) bool) []models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Ticket
	for _, t := range s.tickets {
		if keep(t) {
			out = append(out, cloneTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Tickets) ListByVendor(_ context.Context, vendorID string, limit int) ([]models.Ticket, error) {
	return s.list(limit, func(t models.Ticket) bool { return t.VendorID == vendorID }), nil
}

func (s *Tickets) ListByOrder(_ context.Context, orderNumber string) ([]models.Ticket, error) {
	return s.list(0, func(t models.Ticket) bool { return t.OrderNumber == orderNumber }), nil
}
