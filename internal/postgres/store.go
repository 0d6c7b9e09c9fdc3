package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-inventory-orders/internal/apperr"
	"github.com/ariefcatur/go-inventory-orders/internal/inventory"
	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store implements orders.Store and inventory.Catalog on PostgreSQL.
// Prices travel as text so NUMERIC(10,2) round-trips exactly.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) InTx(ctx context.Context, fn func(orders.Tx) error) error {
	return inTx(ctx, s.pool, s.lockTimeout, func(tx pgx.Tx) error {
		return fn(&storeTx{tx: tx})
	})
}

func (s *Store) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	o, err := loadOrder(ctx, s.pool, id, false)
	return o, classify(err)
}

func (s *Store) CreateProduct(ctx context.Context, p inventory.NewProduct) (inventory.Product, error) {
	if err := p.Validate(); err != nil {
		return inventory.Product{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO products(name, price, stock_quantity)
		VALUES ($1, $2::numeric, $3)
		RETURNING id, name, price::text, stock_quantity`,
		p.Name, p.Price.StringFixed(2), p.StockQuantity)
	out, err := scanProduct(row)
	if err != nil {
		return inventory.Product{}, classify(fmt.Errorf("insert product %q: %w", p.Name, err))
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context, limit, offset int) ([]inventory.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, price::text, stock_quantity
		FROM products ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []inventory.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id int64) (inventory.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, price::text, stock_quantity FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Product{}, apperr.NotFound("product", id)
	}
	return p, classify(err)
}

type storeTx struct{ tx pgx.Tx }

// LockProducts relies on the sort running below the row-lock step, so rows
// are locked in ascending id order.
func (t *storeTx) LockProducts(ctx context.Context, ids []int64) ([]inventory.Product, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, name, price::text, stock_quantity
		FROM products WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *storeTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock_quantity = stock_quantity - $2 WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("product", productID)
	}
	return nil
}

func (t *storeTx) InsertOrder(ctx context.Context, status orders.Status) (orders.Order, error) {
	var (
		o  orders.Order
		st string
	)
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders(status) VALUES ($1::order_status)
		RETURNING id, created_at, status::text`, string(status)).Scan(&o.ID, &o.CreatedAt, &st)
	if err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(st)
	return o, nil
}

func (t *storeTx) InsertItem(ctx context.Context, it orders.OrderItem) (orders.OrderItem, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_items(order_id, product_id, quantity_ordered, price_at_order)
		VALUES ($1, $2, $3, $4::numeric)
		RETURNING id`,
		it.OrderID, it.ProductID, it.Quantity, it.PriceAtOrder.StringFixed(2)).Scan(&it.ID)
	if err != nil {
		return orders.OrderItem{}, err
	}
	return it, nil
}

func (t *storeTx) LockOrder(ctx context.Context, id int64) (orders.Order, error) {
	return loadOrder(ctx, t.tx, id, true)
}

func (t *storeTx) SetStatus(ctx context.Context, id int64, s orders.Status) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2::order_status WHERE id=$1`, id, string(s))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("order", id)
	}
	return nil
}

func loadOrder(ctx context.Context, q querier, id int64, forUpdate bool) (orders.Order, error) {
	sql := `SELECT id, created_at, status::text FROM orders WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var (
		o  orders.Order
		st string
	)
	if err := q.QueryRow(ctx, sql, id).Scan(&o.ID, &o.CreatedAt, &st); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.Order{}, apperr.NotFound("order", id)
		}
		return orders.Order{}, err
	}
	o.Status = orders.Status(st)

	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity_ordered, price_at_order::text
		FROM order_items WHERE order_id=$1 ORDER BY product_id`, id)
	if err != nil {
		return orders.Order{}, err
	}
	defer rows.Close()

	o.Items = []orders.OrderItem{}
	for rows.Next() {
		var (
			it    orders.OrderItem
			price string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &price); err != nil {
			return orders.Order{}, err
		}
		if it.PriceAtOrder, err = decimal.NewFromString(price); err != nil {
			return orders.Order{}, fmt.Errorf("parse price_at_order %q: %w", price, err)
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func scanProduct(row pgx.Row) (inventory.Product, error) {
	var (
		p     inventory.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.StockQuantity); err != nil {
		return inventory.Product{}, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return inventory.Product{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	return p, nil
}
