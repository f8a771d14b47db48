package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gocql/gocql"
	"github.com/shopspring/decimal"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

const maxCASAttempts = 8

// ScyllaCatalog keeps one row per variant in the products keyspace. Stock
// changes go through lightweight transactions so two checkouts can never
// both take the last pair.
type ScyllaCatalog struct {
	session           *gocql.Session
	lowStockThreshold int
}

func NewScyllaCatalog(session *gocql.Session, lowStockThreshold int) *ScyllaCatalog {
	return &ScyllaCatalog{session: session, lowStockThreshold: lowStockThreshold}
}

func (s *ScyllaCatalog) GetVariant(ctx context.Context, key models.VariantKey) (models.Variant, error) {
	var (
		v                          models.Variant
		price, vendorDisc, webDisc string
	)
	err := s.session.Query(`
		SELECT product_id, size, color, vendor_id, name, image, selling_price,
		       vendor_discount, website_discount, stock, active, updated_at
		FROM variants WHERE product_id = ? AND size = ? AND color = ?`,
		key.ProductID, key.Size, key.Color,
	).WithContext(ctx).Scan(
		&v.ProductID, &v.Size, &v.Color, &v.VendorID, &v.Name, &v.Image, &price,
		&vendorDisc, &webDisc, &v.Stock, &v.Active, &v.UpdatedAt,
	)
	if errors.Is(err, gocql.ErrNotFound) {
		return models.Variant{}, apperr.New(apperr.ErrProductNotFound, "variant not found: "+key.String(), nil)
	}
	if err != nil {
		return models.Variant{}, fmt.Errorf("select variant %s: %w", key, err)
	}
	if v.SellingPrice, err = decimal.NewFromString(price); err != nil {
		return models.Variant{}, fmt.Errorf("variant %s selling_price: %w", key, err)
	}
	v.VendorDiscount = decimalOrZero(vendorDisc)
	v.WebsiteDiscount = decimalOrZero(webDisc)
	return v, nil
}

func (s *ScyllaCatalog) DecrementStock(ctx context.Context, key models.VariantKey, qty int, ref string) error {
	return s.adjust(ctx, key, -qty, "sale", ref)
}

func (s *ScyllaCatalog) IncrementStock(ctx context.Context, key models.VariantKey, qty int, ref string) error {
	return s.adjust(ctx, key, qty, "release", ref)
}

// adjust is a compare-and-set loop on the stock column.
func (s *ScyllaCatalog) adjust(ctx context.Context, key models.VariantKey, delta int, kind, ref string) error {
	if delta == 0 {
		return nil
	}
	var current int
	err := s.session.Query(`SELECT stock FROM variants WHERE product_id = ? AND size = ? AND color = ?`,
		key.ProductID, key.Size, key.Color,
	).WithContext(ctx).Consistency(gocql.Quorum).Scan(&current)
	if errors.Is(err, gocql.ErrNotFound) {
		return apperr.New(apperr.ErrProductNotFound, "variant not found: "+key.String(), nil)
	}
	if err != nil {
		return fmt.Errorf("read stock %s: %w", key, err)
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		next := current + delta
		if next < 0 {
			return apperr.OutOfStock(key.String(), current, -delta)
		}

		var seen int
		applied, err := s.session.Query(`
			UPDATE variants SET stock = ?, updated_at = ?
			WHERE product_id = ? AND size = ? AND color = ?
			IF stock = ?`,
			next, time.Now(), key.ProductID, key.Size, key.Color, current,
		).WithContext(ctx).ScanCAS(&seen)
		if err != nil {
			return fmt.Errorf("cas stock %s: %w", key, err)
		}
		if applied {
			s.recordMovement(ctx, models.StockMovement{
				ProductID: key.ProductID,
				Size:      key.Size,
				Color:     key.Color,
				Type:      kind,
				Quantity:  abs(delta),
				PrevStock: current,
				NewStock:  next,
				Reference: ref,
				CreatedAt: time.Now(),
			})
			return nil
		}
		current = seen
	}
	return apperr.New(apperr.ErrVersionConflict, "stock for "+key.String()+" is changing too fast", nil)
}

func (s *ScyllaCatalog) UpsertVariant(ctx context.Context, v models.Variant, seenStock int) error {
	var (
		applied bool
		err     error
		current = map[string]interface{}{}
	)
	if seenStock == NewVariant {
		applied, err = s.session.Query(`
			INSERT INTO variants (product_id, size, color, vendor_id, name, image, selling_price,
			                      vendor_discount, website_discount, stock, active, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			IF NOT EXISTS`,
			v.ProductID, v.Size, v.Color, v.VendorID, v.Name, v.Image, v.SellingPrice.String(),
			v.VendorDiscount.String(), v.WebsiteDiscount.String(), v.Stock, v.Active, time.Now(),
		).WithContext(ctx).MapScanCAS(current)
	} else {
		applied, err = s.session.Query(`
			UPDATE variants SET vendor_id = ?, name = ?, image = ?, selling_price = ?,
			       vendor_discount = ?, website_discount = ?, stock = ?, active = ?, updated_at = ?
			WHERE product_id = ? AND size = ? AND color = ?
			IF stock = ?`,
			v.VendorID, v.Name, v.Image, v.SellingPrice.String(),
			v.VendorDiscount.String(), v.WebsiteDiscount.String(), v.Stock, v.Active, time.Now(),
			v.ProductID, v.Size, v.Color, seenStock,
		).WithContext(ctx).MapScanCAS(current)
	}
	if err != nil {
		return fmt.Errorf("upsert variant %s: %w", v.Key(), err)
	}
	if !applied {
		return apperr.New(apperr.ErrVersionConflict, "stock for "+v.Key().String()+" changed while saving", nil)
	}

	prev := seenStock
	if prev == NewVariant {
		prev = 0
	}
	s.recordMovement(ctx, models.StockMovement{
		ProductID: v.ProductID,
		Size:      v.Size,
		Color:     v.Color,
		Type:      "adjustment",
		Quantity:  abs(v.Stock - prev),
		PrevStock: prev,
		NewStock:  v.Stock,
		Reference: v.VendorID,
		CreatedAt: time.Now(),
	})
	return nil
}

// Movements lists the most recent stock changes of a product.
func (s *ScyllaCatalog) Movements(ctx context.Context, productID string, limit int) ([]models.StockMovement, error) {
	iter := s.session.Query(`
		SELECT product_id, size, color, type, quantity, prev_stock, new_stock, reference, created_at
		FROM stock_movements WHERE product_id = ? LIMIT ?`, productID, limit,
	).WithContext(ctx).Iter()

	var (
		out []models.StockMovement
		m   models.StockMovement
	)
	for iter.Scan(&m.ProductID, &m.Size, &m.Color, &m.Type, &m.Quantity,
		&m.PrevStock, &m.NewStock, &m.Reference, &m.CreatedAt) {
		out = append(out, m)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	return out, nil
}

func (s *ScyllaCatalog) recordMovement(ctx context.Context, m models.StockMovement) {
	if err := s.session.Query(`
		INSERT INTO stock_movements (product_id, id, size, color, type, quantity, prev_stock, new_stock, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ProductID, gocql.TimeUUID(), m.Size, m.Color, m.Type, m.Quantity,
		m.PrevStock, m.NewStock, m.Reference, m.CreatedAt,
	).WithContext(context.WithoutCancel(ctx)).Exec(); err != nil {
		log.Printf("⚠️ stock movement not recorded for %s|%s|%s: %v", m.ProductID, m.Size, m.Color, err)
	}
	if m.NewStock <= s.lowStockThreshold && m.NewStock < m.PrevStock {
		log.Printf("⚠️ low stock on %s|%s|%s: %d left", m.ProductID, m.Size, m.Color, m.NewStock)
	}
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
