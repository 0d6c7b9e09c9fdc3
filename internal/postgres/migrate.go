package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id             BIGSERIAL PRIMARY KEY,
		name           VARCHAR(255) NOT NULL UNIQUE,
		price          NUMERIC(10, 2) NOT NULL,
		stock_quantity INTEGER NOT NULL,
		CONSTRAINT ck_products_price_non_negative CHECK (price >= 0),
		CONSTRAINT ck_products_stock_non_negative CHECK (stock_quantity >= 0)
	)`,
	`DO $$ BEGIN
		CREATE TYPE order_status AS ENUM ('Pending', 'Shipped', 'Cancelled');
	EXCEPTION WHEN duplicate_object THEN NULL;
	END $$`,
	`CREATE TABLE IF NOT EXISTS orders (
		id         BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		status     order_status NOT NULL DEFAULT 'Pending'
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id               BIGSERIAL PRIMARY KEY,
		order_id         BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id       BIGINT NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
		quantity_ordered INTEGER NOT NULL,
		price_at_order   NUMERIC(10, 2) NOT NULL,
		CONSTRAINT ck_order_items_quantity_positive CHECK (quantity_ordered > 0),
		CONSTRAINT uq_order_items_order_product UNIQUE (order_id, product_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_product_id ON order_items(product_id)`,
	`CREATE TABLE IF NOT EXISTS order_audit (
		event_id    UUID PRIMARY KEY,
		event_type  VARCHAR(64) NOT NULL,
		order_id    BIGINT NOT NULL,
		occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
		payload     JSONB NOT NULL,
		recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_audit_order_id ON order_audit(order_id)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
