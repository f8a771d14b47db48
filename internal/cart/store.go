package cart

import (
	"context"

	"shoemart_back_end/internal/models"
)

// Store persists carts. Update and Merge run fn inside an atomic
// read-modify-write: fn may be called more than once under contention and
// must not have side effects. An error from fn aborts without writing.
type Store interface {
	Load(ctx context.Context, owner models.CartOwner) (models.Cart, error)
	Update(ctx context.Context, owner models.CartOwner, fn func(*models.Cart) error) (models.Cart, error)
	Delete(ctx context.Context, owner models.CartOwner) error
	// Merge rewrites to and discards from in one step.
	Merge(ctx context.Context, from, to models.CartOwner, fn func(from, to *models.Cart) error) (models.Cart, error)
}

// Watcher streams change events ("updated", "cleared") of one cart until ctx ends.
type Watcher interface {
	Watch(ctx context.Context, owner models.CartOwner) (<-chan string, error)
}

const (
	EventUpdated = "updated"
	EventCleared = "cleared"
)
