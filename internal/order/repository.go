package order

import (
	"context"

	"shoemart_back_end/internal/models"
)

// Repository persists orders as whole documents.
//
// Create fails with apperr.ErrDuplicateID when the number is taken. Update
// writes o only if the stored version still equals expectedVersion and
// fails with apperr.ErrVersionConflict otherwise.
type Repository interface {
	Create(ctx context.Context, o models.Order) error
	Get(ctx context.Context, number string) (models.Order, error)
	Update(ctx context.Context, o models.Order, expectedVersion int) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Order, error)
	ListByVendor(ctx context.Context, vendorID string, limit int) ([]models.Order, error)
}

// Indexer mirrors orders into the search index. Best effort.
type Indexer interface {
	IndexOrder(ctx context.Context, o models.Order) error
}

// IDGenerator hands out unique order numbers.
type IDGenerator interface {
	Next(ctx context.Context) (string, error)
}
