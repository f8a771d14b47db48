// Package memstore keeps every store in process memory. It backs
// STORE_BACKEND=memory and the service tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

type Catalog struct {
	mu        sync.Mutex
	variants  map[models.VariantKey]models.Variant
	movements []models.StockMovement
}

func NewCatalog(variants ...models.Variant) *Catalog {
	c := &Catalog{variants: make(map[models.VariantKey]models.Variant)}
	for _, v := range variants {
		c.variants[v.Key()] = v
	}
	return c
}

func (c *Catalog) GetVariant(_ context.Context, key models.VariantKey) (models.Variant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.variants[key]
	if !ok {
		return models.Variant{}, apperr.New(apperr.ErrProductNotFound, "variant not found: "+key.String(), nil)
	}
	return v, nil
}

func (c *Catalog) DecrementStock(_ context.Context, key models.VariantKey, qty int, ref string) error {
	return c.adjust(key, -qty, "sale", ref)
}

func (c *Catalog) IncrementStock(_ context.Context, key models.VariantKey, qty int, ref string) error {
	return c.adjust(key, qty, "release", ref)
}

func (c *Catalog) adjust(key models.VariantKey, delta int, kind, ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.variants[key]
	if !ok {
		return apperr.New(apperr.ErrProductNotFound, "variant not found: "+key.String(), nil)
	}
	if v.Stock+delta < 0 {
		return apperr.OutOfStock(key.String(), v.Stock, -delta)
	}
	prev := v.Stock
	v.Stock += delta
	v.UpdatedAt = time.Now()
	c.variants[key] = v
	qty := delta
	if qty < 0 {
		qty = -qty
	}
	c.movements = append(c.movements, models.StockMovement{
		ProductID: key.ProductID, Size: key.Size, Color: key.Color,
		Type: kind, Quantity: qty, PrevStock: prev, NewStock: v.Stock,
		Reference: ref, CreatedAt: v.UpdatedAt,
	})
	return nil
}

func (c *Catalog) UpsertVariant(_ context.Context, v models.Variant, seenStock int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.variants[v.Key()]
	switch {
	case !ok && seenStock != -1:
		return apperr.New(apperr.ErrProductNotFound, "variant not found: "+v.Key().String(), nil)
	case ok && current.Stock != seenStock:
		return apperr.New(apperr.ErrVersionConflict, "stock for "+v.Key().String()+" changed while saving", nil)
	}
	v.UpdatedAt = time.Now()
	c.variants[v.Key()] = v
	return nil
}

// Stock is a test helper. Unknown variants report -1.
func (c *Catalog) Stock(key models.VariantKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.variants[key]
	if !ok {
		return -1
	}
	return v.Stock
}

func (c *Catalog) Movements() []models.StockMovement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.StockMovement(nil), c.movements...)
}
