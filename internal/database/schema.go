package database

import (
	"context"
	"fmt"
	"log"

	"shoemart_back_end/internal/config"
)

// Tables per keyspace role. Documents that change as a whole (orders,
// tickets) are stored as JSON next to the columns the conditional updates
// compare on.
var (
	productTables = []string{
		`CREATE TABLE IF NOT EXISTS %s.variants (
			product_id text, size text, color text,
			vendor_id text, name text, image text,
			selling_price text, vendor_discount text, website_discount text,
			stock int, active boolean, updated_at timestamp,
			PRIMARY KEY (product_id, size, color))`,
		`CREATE TABLE IF NOT EXISTS %s.stock_movements (
			product_id text, id timeuuid, size text, color text, type text,
			quantity int, prev_stock int, new_stock int, reference text, created_at timestamp,
			PRIMARY KEY (product_id, id)) WITH CLUSTERING ORDER BY (id DESC)`,
	}
	userTables = []string{
		`CREATE TABLE IF NOT EXISTS %s.users (
			user_id text PRIMARY KEY, phone text, name text, email text,
			role text, vendor_id text, created_at timestamp)`,
		`CREATE TABLE IF NOT EXISTS %s.users_by_phone (phone text PRIMARY KEY, user_id text)`,
	}
	orderTables = []string{
		`CREATE TABLE IF NOT EXISTS %s.orders (
			order_number text PRIMARY KEY, user_id text, status text, doc text,
			version int, created_at timestamp, updated_at timestamp)`,
		`CREATE TABLE IF NOT EXISTS %s.orders_by_user (
			user_id text, created_at timestamp, order_number text,
			PRIMARY KEY (user_id, created_at, order_number))
			WITH CLUSTERING ORDER BY (created_at DESC, order_number ASC)`,
		`CREATE TABLE IF NOT EXISTS %s.orders_by_vendor (
			vendor_id text, created_at timestamp, order_number text,
			PRIMARY KEY (vendor_id, created_at, order_number))
			WITH CLUSTERING ORDER BY (created_at DESC, order_number ASC)`,
		`CREATE TABLE IF NOT EXISTS %s.coupons (
			code text PRIMARY KEY, type text, value text, min_amount text, max_discount text,
			max_uses int, used_count int, max_uses_per_user int,
			starts_at timestamp, expires_at timestamp, active boolean)`,
		`CREATE TABLE IF NOT EXISTS %s.coupon_usage (
			code text, user_id text, order_number text, used_at timestamp,
			PRIMARY KEY ((code, user_id), order_number))`,
		`CREATE TABLE IF NOT EXISTS %s.tickets (
			ticket_id text PRIMARY KEY, vendor_id text, order_number text, status text,
			doc text, version int, created_at timestamp)`,
		`CREATE TABLE IF NOT EXISTS %s.tickets_by_vendor (
			vendor_id text, created_at timestamp, ticket_id text,
			PRIMARY KEY (vendor_id, created_at, ticket_id))
			WITH CLUSTERING ORDER BY (created_at DESC, ticket_id ASC)`,
		`CREATE TABLE IF NOT EXISTS %s.tickets_by_order (
			order_number text, ticket_id text,
			PRIMARY KEY (order_number, ticket_id))`,
	}
)

// Schema returns the statements creating keyspace ks and the tables of role
// ("products", "users" or "orders").
func Schema(ks, role string) []string {
	stmts := []string{fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
		WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, ks)}
	var tables []string
	switch role {
	case "products":
		tables = productTables
	case "users":
		tables = userTables
	case "orders":
		tables = orderTables
	}
	for _, t := range tables {
		stmts = append(stmts, fmt.Sprintf(t, ks))
	}
	return stmts
}

// Migrate creates the keyspaces and tables that do not exist yet. Meant for
// development clusters; production schemas are applied by the operators.
func Migrate(ctx context.Context, cfg config.ScyllaConfig) error {
	session, err := newCluster(cfg, "").CreateSession()
	if err != nil {
		return fmt.Errorf("scylla migration session: %w", err)
	}
	defer session.Close()

	roles := map[string]string{
		cfg.ProductsKeyspace: "products",
		cfg.UsersKeyspace:    "users",
		cfg.OrdersKeyspace:   "orders",
	}
	for ks, role := range roles {
		for _, stmt := range Schema(ks, role) {
			if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
				return fmt.Errorf("migrate %s: %w", ks, err)
			}
		}
		log.Printf("✅ Schema of %s up to date", ks)
	}
	return nil
}
