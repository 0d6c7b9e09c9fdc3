package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID        int64
	CreatedAt time.Time
	Status    Status
	Items     []OrderItem // ordered by product id
}

// OrderItem is written once with its order and never updated. PriceAtOrder
// is the product price at the moment the order was placed.
type OrderItem struct {
	ID           int64
	OrderID      int64
	ProductID    int64
	Quantity     int
	PriceAtOrder decimal.Decimal
}

func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.PriceAtOrder.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}
