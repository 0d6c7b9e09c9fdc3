package httpx

import (
	"time"

	"github.com/ariefcatur/go-inventory-orders/internal/inventory"
	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	"github.com/shopspring/decimal"
)

type CreateProductReq struct {
	Name          string           `json:"name"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity int              `json:"stock_quantity"`
}

type ProductResp struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	StockQuantity int    `json:"stock_quantity"`
}

type OrderItemReq struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CreateOrderReq struct {
	Items []OrderItemReq `json:"items"`
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

type OrderItemResp struct {
	ID              int64  `json:"id"`
	ProductID       int64  `json:"product_id"`
	QuantityOrdered int    `json:"quantity_ordered"`
	PriceAtOrder    string `json:"price_at_order"`
}

type OrderResp struct {
	ID        int64           `json:"id"`
	CreatedAt string          `json:"created_at"`
	Status    orders.Status   `json:"status"`
	Items     []OrderItemResp `json:"items"`
	Total     string          `json:"total"`
}

func toProductResp(p inventory.Product) ProductResp {
	return ProductResp{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price.StringFixed(2),
		StockQuantity: p.StockQuantity,
	}
}

func toOrderResp(o orders.Order) OrderResp {
	items := make([]OrderItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResp{
			ID:              it.ID,
			ProductID:       it.ProductID,
			QuantityOrdered: it.Quantity,
			PriceAtOrder:    it.PriceAtOrder.StringFixed(2),
		})
	}
	return OrderResp{
		ID:        o.ID,
		CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
		Status:    o.Status,
		Items:     items,
		Total:     o.Total().StringFixed(2),
	}
}
