package inventory

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-inventory-orders/internal/apperr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-inventory-orders/internal/inventory")

// Locker is the part of a unit of work the ledger needs. Implementations must
// hold the returned product locks until the unit of work ends.
type Locker interface {
	// LockProducts locks the rows of ids exclusively, in ascending id order,
	// and returns the products that exist. Missing ids are simply absent.
	LockProducts(ctx context.Context, ids []int64) ([]Product, error)
	DecrementStock(ctx context.Context, productID int64, qty int) error
}

// Catalog is the product-facing storage surface.
type Catalog interface {
	CreateProduct(ctx context.Context, p NewProduct) (Product, error)
	ListProducts(ctx context.Context, limit, offset int) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
}

// Reserve locks every product in q, checks existence and stock for all of
// them, and only then decrements. On error nothing has been decremented.
// Reservations come back in ascending product id order.
func Reserve(ctx context.Context, l Locker, q Quantities) ([]Reservation, error) {
	ctx, span := tracer.Start(ctx, "inventory.reserve")
	defer span.End()

	ids := q.IDs()
	span.SetAttributes(attribute.Int("inventory.products", len(ids)))

	res, err := reserve(ctx, l, q, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func reserve(ctx context.Context, l Locker, q Quantities, ids []int64) ([]Reservation, error) {
	locked, err := l.LockProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	byID := make(map[int64]Product, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.NotFound("product", missing...)
	}

	for _, id := range ids {
		if p := byID[id]; p.StockQuantity < q[id] {
			return nil, &apperr.InsufficientStockError{
				ProductID: id, Requested: q[id], Available: p.StockQuantity,
			}
		}
	}

	out := make([]Reservation, 0, len(ids))
	for _, id := range ids {
		if err := l.DecrementStock(ctx, id, q[id]); err != nil {
			return nil, fmt.Errorf("decrement product %d: %w", id, err)
		}
		p := byID[id]
		p.StockQuantity -= q[id]
		out = append(out, Reservation{Product: p, Quantity: q[id]})
	}
	return out, nil
}
