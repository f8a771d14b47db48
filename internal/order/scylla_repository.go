package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/gocql/gocql"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

// ScyllaRepository stores each order as a JSON document next to a version
// column used for conditional updates. orders_by_user and orders_by_vendor
// are lookup tables keyed for the listing endpoints.
type ScyllaRepository struct {
	session *gocql.Session
}

func NewScyllaRepository(session *gocql.Session) *ScyllaRepository {
	return &ScyllaRepository{session: session}
}

func (r *ScyllaRepository) Create(ctx context.Context, o models.Order) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", o.Number, err)
	}
	applied, err := r.session.Query(`
		INSERT INTO orders (order_number, user_id, status, doc, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		o.Number, o.UserID, string(o.Status), string(doc), o.Version, o.CreatedAt, o.UpdatedAt,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.Number, err)
	}
	if !applied {
		return apperr.New(apperr.ErrDuplicateID, "order number "+o.Number+" already exists", nil)
	}

	r.writeLookups(ctx, o)
	return nil
}

// writeLookups fills the listing tables. A missing row only hides the order
// from a list, so failures are logged.
func (r *ScyllaRepository) writeLookups(ctx context.Context, o models.Order) {
	ctx = context.WithoutCancel(ctx)
	if err := r.session.Query(`
		INSERT INTO orders_by_user (user_id, created_at, order_number) VALUES (?, ?, ?)`,
		o.UserID, o.CreatedAt, o.Number,
	).WithContext(ctx).Exec(); err != nil {
		log.Printf("⚠️ orders_by_user not written for %s: %v", o.Number, err)
	}

	seen := map[string]bool{}
	for _, it := range o.Items {
		if seen[it.VendorID] {
			continue
		}
		seen[it.VendorID] = true
		if err := r.session.Query(`
			INSERT INTO orders_by_vendor (vendor_id, created_at, order_number) VALUES (?, ?, ?)`,
			it.VendorID, o.CreatedAt, o.Number,
		).WithContext(ctx).Exec(); err != nil {
			log.Printf("⚠️ orders_by_vendor not written for %s/%s: %v", o.Number, it.VendorID, err)
		}
	}
}

func (r *ScyllaRepository) Get(ctx context.Context, number string) (models.Order, error) {
	var doc string
	err := r.session.Query(`SELECT doc FROM orders WHERE order_number = ?`, number).
		WithContext(ctx).Consistency(gocql.Quorum).Scan(&doc)
	if errors.Is(err, gocql.ErrNotFound) {
		return models.Order{}, apperr.New(apperr.ErrOrderNotFound, "order "+number+" not found", nil)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("select order %s: %w", number, err)
	}
	var o models.Order
	if err := json.Unmarshal([]byte(doc), &o); err != nil {
		return models.Order{}, fmt.Errorf("decode order %s: %w", number, err)
	}
	return o, nil
}

func (r *ScyllaRepository) Update(ctx context.Context, o models.Order, expectedVersion int) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", o.Number, err)
	}
	var current int
	applied, err := r.session.Query(`
		UPDATE orders SET status = ?, doc = ?, version = ?, updated_at = ?
		WHERE order_number = ? IF version = ?`,
		string(o.Status), string(doc), o.Version, o.UpdatedAt, o.Number, expectedVersion,
	).WithContext(ctx).ScanCAS(&current)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.Number, err)
	}
	if !applied {
		return apperr.New(apperr.ErrVersionConflict, "order "+o.Number+" was modified concurrently",
			map[string]any{"expected": expectedVersion, "current": current})
	}
	return nil
}

func (r *ScyllaRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	return r.listBy(ctx, `SELECT order_number FROM orders_by_user WHERE user_id = ? LIMIT ?`, userID, limit)
}

func (r *ScyllaRepository) ListByVendor(ctx context.Context, vendorID string, limit int) ([]models.Order, error) {
	return r.listBy(ctx, `SELECT order_number FROM orders_by_vendor WHERE vendor_id = ? LIMIT ?`, vendorID, limit)
}

func (r *ScyllaRepository) listBy(ctx context.Context, stmt, key string, limit int) ([]models.Order, error) {
	iter := r.session.Query(stmt, key, limit).WithContext(ctx).Iter()
	var (
		numbers []string
		number  string
	)
	for iter.Scan(&number) {
		numbers = append(numbers, number)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list orders for %s: %w", key, err)
	}

	orders := make([]models.Order, 0, len(numbers))
	for _, n := range numbers {
		o, err := r.Get(ctx, n)
		if errors.Is(err, apperr.ErrOrderNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}
