package inventory

import (
	"math"
	"slices"

	"github.com/ariefcatur/go-inventory-orders/internal/apperr"
)

// MaxQuantity is the largest total a single product may be ordered in, the
// range of the INTEGER quantity and stock columns.
const MaxQuantity = math.MaxInt32

// Quantities maps product id to the total requested quantity.
type Quantities map[int64]int

// IDs returns the distinct product ids in ascending order. This is the lock
// order for every reservation.
func (q Quantities) IDs() []int64 {
	ids := make([]int64, 0, len(q))
	for id := range q {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Aggregate merges lines naming the same product into one quantity.
func Aggregate(lines []Line) (Quantities, error) {
	if len(lines) == 0 {
		return nil, apperr.Invalid("order must contain at least one item")
	}
	q := make(Quantities, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, apperr.Invalid("quantity for product %d must be positive", l.ProductID)
		}
		if l.Quantity > MaxQuantity || q[l.ProductID] > MaxQuantity-l.Quantity {
			return nil, apperr.Invalid("quantity for product %d must not exceed %d", l.ProductID, MaxQuantity)
		}
		q[l.ProductID] += l.Quantity
	}
	return q, nil
}
