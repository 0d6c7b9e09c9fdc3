package orders

import (
	"context"

	"github.com/ariefcatur/go-inventory-orders/internal/inventory"
)

// Tx is one unit of work. Locks taken through it are held until InTx returns.
type Tx interface {
	inventory.Locker

	// InsertOrder creates an order row and returns it with its server-side
	// id and creation timestamp.
	InsertOrder(ctx context.Context, status Status) (Order, error)
	InsertItem(ctx context.Context, item OrderItem) (OrderItem, error)
	// LockOrder locks the order row exclusively and returns it with items.
	// A missing order yields apperr.ErrNotFound.
	LockOrder(ctx context.Context, id int64) (Order, error)
	SetStatus(ctx context.Context, id int64, s Status) error
}

type Store interface {
	// InTx runs fn in one transaction: committed when fn returns nil,
	// rolled back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
}
