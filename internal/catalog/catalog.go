// Package catalog is the stock and price source for carts and orders.
package catalog

import (
	"context"
	"log"
	"sort"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

// Catalog returns apperr.ErrProductNotFound for unknown variants and
// apperr.ErrOutOfStock when a decrement would go below zero.
type Catalog interface {
	GetVariant(ctx context.Context, key models.VariantKey) (models.Variant, error)
	// DecrementStock only applies when the stock still covers qty at write time.
	DecrementStock(ctx context.Context, key models.VariantKey, qty int, ref string) error
	IncrementStock(ctx context.Context, key models.VariantKey, qty int, ref string) error
	// UpsertVariant writes v only while the stored stock still equals
	// seenStock, and apperr.ErrVersionConflict otherwise. Pass NewVariant
	// when the variant should not exist yet.
	UpsertVariant(ctx context.Context, v models.Variant, seenStock int) error
}

// NewVariant is the seen stock of a variant that has never been saved.
const NewVariant = -1

type Line struct {
	Key      models.VariantKey
	Quantity int
}

// Reserve decrements every line or none of them. Lines already taken are
// given back when a later one fails and the error wraps ErrStockReservationFailed.
func Reserve(ctx context.Context, c Catalog, lines []Line, ref string) error {
	ordered := make([]Line, len(lines))
	copy(ordered, lines)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Key.String() < ordered[j].Key.String()
	})

	for i, l := range ordered {
		if err := c.DecrementStock(ctx, l.Key, l.Quantity, ref); err != nil {
			Release(ctx, c, ordered[:i], ref)
			return apperr.Wrap(apperr.ErrStockReservationFailed, err)
		}
	}
	return nil
}

// Release puts stock back. Failures are logged, there is nobody left to report them to.
func Release(ctx context.Context, c Catalog, lines []Line, ref string) {
	for _, l := range lines {
		if err := c.IncrementStock(context.WithoutCancel(ctx), l.Key, l.Quantity, ref); err != nil {
			log.Printf("❌ stock release failed for %s (qty %d, ref %s): %v", l.Key, l.Quantity, ref, err)
		}
	}
}
