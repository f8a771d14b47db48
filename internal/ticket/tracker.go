// Package ticket tracks customer and vendor complaints about orders (missing
// or damaged pairs, wrong products) from filing to resolution.
package ticket

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
	"shoemart_back_end/internal/notify"
)

const (
	maxUpdateAttempts = 5
	maxIDAttempts     = 5
	maxDescription    = 2000
	maxMedia          = 5
)

// Policy decides which orders accept tickets. By default any order can get
// one, whatever the state of its items.
type Policy struct {
	RequireDelivered bool
}

type Notifier interface {
	Notify(msg notify.Message)
}

type Tracker struct {
	tickets  Repository
	orders   OrderReader
	ids      IDGenerator
	policy   Policy
	contacts Contacts
	notifier Notifier
	now      func() time.Time
}

type Option func(*Tracker)

func WithNotifier(n Notifier, contacts Contacts) Option {
	return func(t *Tracker) {
		t.notifier = n
		t.contacts = contacts
	}
}

func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

func NewTracker(tickets Repository, orders OrderReader, ids IDGenerator, policy Policy, opts ...Option) *Tracker {
	t := &Tracker{tickets: tickets, orders: orders, ids: ids, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type CreateInput struct {
	VendorID    string
	FiledBy     string
	OrderNumber string
	Type        models.TicketType
	Description string
	Media       []models.TicketMedia

	// CustomerID is set when a customer files. The order must be theirs.
	CustomerID string
}

func (in CreateInput) validate() error {
	switch {
	case in.VendorID == "":
		return apperr.Validation("vendor_id", "vendor is required")
	case in.OrderNumber == "":
		return apperr.Validation("order_id", "order is required")
	case strings.TrimSpace(in.Description) == "":
		return apperr.Validation("description", "description is required")
	case utf8.RuneCountInString(in.Description) > maxDescription:
		return apperr.Validation("description", "description is too long")
	case len(in.Media) > maxMedia:
		return apperr.Validation("media", "too many attachments")
	}
	if _, err := models.ParseTicketType(string(in.Type)); err != nil {
		return apperr.Validation("type", err.Error())
	}
	return nil
}

// CreateTicket files a ticket against an order the vendor has items in.
// Customers only reach their own orders; others look missing to them.
func (t *Tracker) CreateTicket(ctx context.Context, in CreateInput) (models.Ticket, error) {
	if err := in.validate(); err != nil {
		return models.Ticket{}, err
	}
	o, err := t.orders.Get(ctx, in.OrderNumber)
	if err != nil {
		return models.Ticket{}, err
	}
	if in.CustomerID != "" && o.UserID != in.CustomerID {
		return models.Ticket{}, apperr.ErrOrderNotFound
	}
	if !o.HasVendor(in.VendorID) {
		return models.Ticket{}, apperr.New(apperr.ErrForbidden, "order "+in.OrderNumber+" has no items from this vendor", nil)
	}
	if t.policy.RequireDelivered && !deliveredFor(o, in.VendorID) {
		return models.Ticket{}, apperr.New(apperr.ErrValidation, "tickets can only be filed once an item is delivered",
			map[string]any{"order_id": o.Number, "status": o.Status})
	}

	now := t.now()
	tk := models.Ticket{
		VendorID:    in.VendorID,
		OrderNumber: o.Number,
		FiledBy:     in.FiledBy,
		Type:        in.Type,
		Description: strings.TrimSpace(in.Description),
		Media:       in.Media,
		Status:      models.TicketOpen,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		if tk.ID, err = t.ids.Next(ctx); err != nil {
			return models.Ticket{}, apperr.Wrap(apperr.ErrExternalService, err)
		}
		err = t.tickets.Create(ctx, tk)
		if errors.Is(err, apperr.ErrDuplicateID) {
			log.Printf("⚠️ ticket id %s already taken, drawing another", tk.ID)
			continue
		}
		if err != nil {
			return models.Ticket{}, err
		}
		log.Printf("🎫 Ticket %s (%s) filed on %s by %s for vendor %s", tk.ID, tk.Type, tk.OrderNumber, tk.FiledBy, tk.VendorID)
		return tk, nil
	}
	return models.Ticket{}, apperr.New(apperr.ErrDuplicateID, "could not allocate a ticket id", nil)
}

func deliveredFor(o models.Order, vendorID string) bool {
	for _, it := range o.Items {
		if it.VendorID == vendorID && it.Status == models.ItemDelivered {
			return true
		}
	}
	return false
}

// StartProgress marks an open ticket as being worked on.
func (t *Tracker) StartProgress(ctx context.Context, id string) (models.Ticket, error) {
	tk, err := t.mutate(ctx, id, func(tk *models.Ticket) error {
		if tk.Status != models.TicketOpen {
			return apperr.InvalidTransition(string(tk.Status), string(models.TicketInProgress))
		}
		tk.Status = models.TicketInProgress
		return nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	t.notify(ctx, tk)
	return tk, nil
}

// ResolveTicket closes a ticket as resolved (accept) or rejected.
func (t *Tracker) ResolveTicket(ctx context.Context, id, resolution string, accept bool) (models.Ticket, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return models.Ticket{}, apperr.Validation("resolution", "resolution is required")
	}
	to := models.TicketRejected
	if accept {
		to = models.TicketResolved
	}
	tk, err := t.mutate(ctx, id, func(tk *models.Ticket) error {
		if tk.Status.Terminal() {
			return apperr.InvalidTransition(string(tk.Status), string(to))
		}
		now := t.now()
		tk.Status = to
		tk.Resolution = resolution
		tk.ResolvedAt = &now
		return nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	log.Printf("✅ Ticket %s %s", tk.ID, tk.Status)
	t.notify(ctx, tk)
	return tk, nil
}

func (t *Tracker) mutate(ctx context.Context, id string, fn func(tk *models.Ticket) error) (models.Ticket, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		tk, err := t.tickets.Get(ctx, id)
		if err != nil {
			return models.Ticket{}, err
		}
		prev := tk.Version
		if err := fn(&tk); err != nil {
			return models.Ticket{}, err
		}
		tk.Version = prev + 1
		tk.UpdatedAt = t.now()
		err = t.tickets.Update(ctx, tk, prev)
		if errors.Is(err, apperr.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return models.Ticket{}, err
		}
		return tk, nil
	}
	return models.Ticket{}, apperr.New(apperr.ErrVersionConflict, "ticket "+id+" is being updated concurrently", nil)
}

func (t *Tracker) notify(ctx context.Context, tk models.Ticket) {
	if t.notifier == nil || t.contacts == nil || tk.FiledBy == "" {
		return
	}
	u, err := t.contacts.GetByID(ctx, tk.FiledBy)
	if err != nil {
		log.Printf("⚠️ no contact for ticket %s: %v", tk.ID, err)
		return
	}
	t.notifier.Notify(notify.Message{
		Phone: u.Phone,
		Email: u.Email,
		Kind:  notify.KindTicketUpdate,
		Vars: map[string]string{
			"ticket_id":  tk.ID,
			"order_id":   tk.OrderNumber,
			"status":     string(tk.Status),
			"resolution": tk.Resolution,
		},
	})
}

// Get returns a ticket the actor may see. Admins see all, vendors the ones
// against them and anyone else only what they filed.
func (t *Tracker) Get(ctx context.Context, id string, actor models.Actor) (models.Ticket, error) {
	tk, err := t.tickets.Get(ctx, id)
	if err != nil {
		return models.Ticket{}, err
	}
	switch {
	case actor.IsAdmin():
	case actor.IsVendor() && actor.VendorID == tk.VendorID:
	case actor.UserID != "" && actor.UserID == tk.FiledBy:
	default:
		return models.Ticket{}, apperr.ErrTicketNotFound
	}
	return tk, nil
}

func (t *Tracker) ListForVendor(ctx context.Context, vendorID string, limit int) ([]models.Ticket, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return t.tickets.ListByVendor(ctx, vendorID, limit)
}

func (t *Tracker) ListForOrder(ctx context.Context, orderNumber string) ([]models.Ticket, error) {
	return t.tickets.ListByOrder(ctx, orderNumber)
}
