package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-inventory-orders/internal/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	products   map[int64]Product
	lockedWith [][]int64
	decrements map[int64]int
	failOn     int64
}

func newFakeLocker(ps ...Product) *fakeLocker {
	f := &fakeLocker{products: map[int64]Product{}, decrements: map[int64]int{}}
	for _, p := range ps {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeLocker) LockProducts(_ context.Context, ids []int64) ([]Product, error) {
	f.lockedWith = append(f.lockedWith, ids)
	var out []Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeLocker) DecrementStock(_ context.Context, id int64, qty int) error {
	if id == f.failOn {
		return errors.New("boom")
	}
	f.decrements[id] += qty
	return nil
}

func widget(id int64, stock int) Product {
	return Product{ID: id, Name: "p", Price: decimal.RequireFromString("10.00"), StockQuantity: stock}
}

func TestAggregate_MergesDuplicates(t *testing.T) {
	q, err := Aggregate([]Line{{ProductID: 7, Quantity: 1}, {ProductID: 2, Quantity: 3}, {ProductID: 7, Quantity: 4}})

	require.NoError(t, err)
	assert.Equal(t, Quantities{7: 5, 2: 3}, q)
	assert.Equal(t, []int64{2, 7}, q.IDs())
}

func TestAggregate_RejectsBadInput(t *testing.T) {
	_, err := Aggregate(nil)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = Aggregate([]Line{{ProductID: 1, Quantity: 0}})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestAggregate_RejectsOversizedTotals(t *testing.T) {
	const huge = 1 << 62
	wrapping := []Line{
		{ProductID: 1, Quantity: huge}, {ProductID: 1, Quantity: huge},
		{ProductID: 1, Quantity: huge}, {ProductID: 1, Quantity: huge},
		{ProductID: 1, Quantity: 1},
	}
	_, err := Aggregate(wrapping)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = Aggregate([]Line{{ProductID: 1, Quantity: MaxQuantity}, {ProductID: 1, Quantity: 1}})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = Aggregate([]Line{{ProductID: 1, Quantity: MaxQuantity + 1}})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	q, err := Aggregate([]Line{{ProductID: 1, Quantity: MaxQuantity - 1}, {ProductID: 1, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, MaxQuantity, q[1])
}

func TestReserve_LocksOnceInAscendingOrder(t *testing.T) {
	l := newFakeLocker(widget(1, 5), widget(3, 5), widget(9, 5))

	res, err := Reserve(context.Background(), l, Quantities{9: 1, 1: 2, 3: 3})

	require.NoError(t, err)
	require.Len(t, l.lockedWith, 1)
	assert.Equal(t, []int64{1, 3, 9}, l.lockedWith[0])
	require.Len(t, res, 3)
	assert.Equal(t, int64(1), res[0].Product.ID)
	assert.Equal(t, 3, res[0].Product.StockQuantity)
	assert.Equal(t, 2, res[0].Quantity)
	assert.Equal(t, map[int64]int{1: 2, 3: 3, 9: 1}, l.decrements)
}

func TestReserve_MissingProductsListedBeforeAnyDecrement(t *testing.T) {
	l := newFakeLocker(widget(1, 5))

	_, err := Reserve(context.Background(), l, Quantities{1: 1, 4: 1, 2: 1})

	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []int64{2, 4}, nf.IDs)
	assert.Empty(t, l.decrements)
}

func TestReserve_InsufficientStockBeforeAnyDecrement(t *testing.T) {
	l := newFakeLocker(widget(1, 5), widget(2, 1))

	_, err := Reserve(context.Background(), l, Quantities{1: 2, 2: 2})

	var ise *apperr.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(2), ise.ProductID)
	assert.Equal(t, 2, ise.Requested)
	assert.Equal(t, 1, ise.Available)
	assert.Empty(t, l.decrements)
}

func TestReserve_ExactStockSucceeds(t *testing.T) {
	l := newFakeLocker(widget(1, 2))

	res, err := Reserve(context.Background(), l, Quantities{1: 2})

	require.NoError(t, err)
	assert.Equal(t, 0, res[0].Product.StockQuantity)
}

func TestReserve_DecrementErrorPropagates(t *testing.T) {
	l := newFakeLocker(widget(1, 5))
	l.failOn = 1

	_, err := Reserve(context.Background(), l, Quantities{1: 1})

	assert.ErrorContains(t, err, "decrement product 1")
}

func TestNewProduct_Validate(t *testing.T) {
	ok := NewProduct{Name: "Widget", Price: decimal.RequireFromString("10.00"), StockQuantity: 5}
	require.NoError(t, ok.Validate())
	top := NewProduct{Name: "Top", Price: decimal.RequireFromString("99999999.99")}
	require.NoError(t, top.Validate())

	tests := []struct {
		name string
		p    NewProduct
	}{
		{"blank name", NewProduct{Name: "  ", Price: decimal.Zero}},
		{"negative price", NewProduct{Name: "x", Price: decimal.RequireFromString("-0.01")}},
		{"three decimals", NewProduct{Name: "x", Price: decimal.RequireFromString("1.005")}},
		{"price out of column range", NewProduct{Name: "x", Price: decimal.RequireFromString("100000000.00")}},
		{"negative stock", NewProduct{Name: "x", Price: decimal.Zero, StockQuantity: -1}},
		{"stock out of column range", NewProduct{Name: "x", Price: decimal.Zero, StockQuantity: MaxQuantity + 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.p.Validate(), apperr.ErrInvalid)
		})
	}
}
