package ticket

import (
	"context"

	"shoemart_back_end/internal/models"
)

// Repository persists tickets. Create fails with apperr.ErrDuplicateID when
// the id is taken and Update with apperr.ErrVersionConflict when the stored
// version moved past expectedVersion.
type Repository interface {
	Create(ctx context.Context, t models.Ticket) error
	Get(ctx context.Context, id string) (models.Ticket, error)
	Update(ctx context.Context, t models.Ticket, expectedVersion int) error
	ListByVendor(ctx context.Context, vendorID string, limit int) ([]models.Ticket, error)
	ListByOrder(ctx context.Context, orderNumber string) ([]models.Ticket, error)
}

type OrderReader interface {
	Get(ctx context.Context, number string) (models.Order, error)
}

type IDGenerator interface {
	Next(ctx context.Context) (string, error)
}

// Contacts resolves the account that filed a ticket for notifications.
type Contacts interface {
	GetByID(ctx context.Context, userID string) (models.User, error)
}
