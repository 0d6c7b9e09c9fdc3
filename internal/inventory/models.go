package inventory

import (
	"strings"

	"github.com/ariefcatur/go-inventory-orders/internal/apperr"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64
	Name          string
	Price         decimal.Decimal // 2 fractional digits
	StockQuantity int
}

// NewProduct is the input of CreateProduct.
type NewProduct struct {
	Name          string
	Price         decimal.Decimal
	StockQuantity int
}

const maxNameLen = 255

// maxPrice is the exclusive bound of a NUMERIC(10,2) column.
var maxPrice = decimal.New(1, 8)

// Validate checks the shape rules the storage layer would otherwise reject
// with a check constraint.
func (p NewProduct) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" || len(name) > maxNameLen {
		return apperr.Invalid("name must be 1..%d characters", maxNameLen)
	}
	if p.Price.IsNegative() {
		return apperr.Invalid("price must be non-negative")
	}
	if p.Price.GreaterThanOrEqual(maxPrice) {
		return apperr.Invalid("price must be below %s", maxPrice)
	}
	if !p.Price.Equal(p.Price.Round(2)) {
		return apperr.Invalid("price must have at most 2 decimal places")
	}
	if p.StockQuantity < 0 || p.StockQuantity > MaxQuantity {
		return apperr.Invalid("stock_quantity must be 0..%d", MaxQuantity)
	}
	return nil
}

// Line is one requested order line before aggregation.
type Line struct {
	ProductID int64
	Quantity  int
}

// Reservation is a product as read under lock, after its stock was
// decremented by Quantity.
type Reservation struct {
	Product  Product
	Quantity int
}
