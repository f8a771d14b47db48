package ticket

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

// ScyllaRepository stores tickets as JSON documents with a version column,
// plus tickets_by_vendor and tickets_by_order lookup tables.
type ScyllaRepository struct {
	session *gocql.Session
}

func NewScyllaRepository(session *gocql.Session) *ScyllaRepository {
	return &ScyllaRepository{session: session}
}

func (r *ScyllaRepository) Create(ctx context.Context, t models.Ticket) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode ticket %s: %w", t.ID, err)
	}
	applied, err := r.session.Query(`
		INSERT INTO tickets (ticket_id, vendor_id, order_number, status, doc, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		t.ID, t.VendorID, t.OrderNumber, string(t.Status), string(doc), t.Version, t.CreatedAt,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("insert ticket %s: %w", t.ID, err)
	}
	if !applied {
		return apperr.New(apperr.ErrDuplicateID, "ticket "+t.ID+" already exists", nil)
	}

	ctx = context.WithoutCancel(ctx)
	if err := r.session.Query(`INSERT INTO tickets_by_vendor (vendor_id, created_at, ticket_id) VALUES (?, ?, ?)`,
		t.VendorID, t.CreatedAt, t.ID).WithContext(ctx).Exec(); err != nil {
		log.Printf("⚠️ tickets_by_vendor not written for %s: %v", t.ID, err)
	}
	if err := r.session.Query(`INSERT INTO tickets_by_order (order_number, ticket_id) VALUES (?, ?)`,
		t.OrderNumber, t.ID).WithContext(ctx).Exec(); err != nil {
		log.Printf("⚠️ tickets_by_order not written for %s: %v", t.ID, err)
	}
	return nil
}

func (r *ScyllaRepository) Get(ctx context.Context, id string) (models.Ticket, error) {
	var doc string
	err := r.session.Query(`SELECT doc FROM tickets WHERE ticket_id = ?`, id).
		WithContext(ctx).Consistency(gocql.Quorum).Scan(&doc)
	if errors.Is(err, gocql.ErrNotFound) {
		return models.Ticket{}, apperr.New(apperr.ErrTicketNotFound, "ticket "+id+" not found", nil)
	}
	if err != nil {
		return models.Ticket{}, fmt.Errorf("select ticket %s: %w", id, err)
	}
	var t models.Ticket
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return models.Ticket{}, fmt.Errorf("decode ticket %s: %w", id, err)
	}
	return t, nil
}

func (r *ScyllaRepository) Update(ctx context.Context, t models.Ticket, expectedVersion int) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode ticket %s: %w", t.ID, err)
	}
	var current int
	applied, err := r.session.Query(`
		UPDATE tickets SET status = ?, doc = ?, version = ? WHERE ticket_id = ? IF version = ?`,
		string(t.Status), string(doc), t.Version, t.ID, expectedVersion,
	).WithContext(ctx).ScanCAS(&current)
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", t.ID, err)
	}
	if !applied {
		return apperr.New(apperr.ErrVersionConflict, "ticket "+t.ID+" was modified concurrently",
			map[string]any{"expected": expectedVersion, "current": current})
	}
	return nil
}

func (r *ScyllaRepository) ListByVendor(ctx context.Context, vendorID string, limit int) ([]models.Ticket, error) {
	return r.listBy(ctx, `SELECT ticket_id FROM tickets_by_vendor WHERE vendor_id = ? LIMIT ?`, vendorID, limit)
}

func (r *ScyllaRepository) ListByOrder(ctx context.Context, orderNumber string) ([]models.Ticket, error) {
	return r.listBy(ctx, `SELECT ticket_id FROM tickets_by_order WHERE order_number = ? LIMIT ?`, orderNumber, 100)
}

func (r *ScyllaRepository) listBy(ctx context.Context, stmt, key string, limit int) ([]models.Ticket, error) {
	iter := r.session.Query(stmt, key, limit).WithContext(ctx).Iter()
	var (
		ids []string
		id  string
	)
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list tickets for %s: %w", key, err)
	}
	out := make([]models.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := r.Get(ctx, id)
		if errors.Is(err, apperr.ErrTicketNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
