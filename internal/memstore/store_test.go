package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-inventory-orders/internal/apperr"
	"github.com/ariefcatur/go-inventory-orders/internal/inventory"
	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func seed(t *testing.T, s *Store, name string, stock int) inventory.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), inventory.NewProduct{
		Name: name, Price: decimal.RequireFromString("2.50"), StockQuantity: stock,
	})
	require.NoError(t, err)
	return p
}

func TestCreateProduct_UniqueName(t *testing.T) {
	s := New(time.Second)
	seed(t, s, "Widget", 1)

	_, err := s.CreateProduct(context.Background(), inventory.NewProduct{Name: "Widget", Price: decimal.Zero})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// Names compare case-sensitively, like the postgres UNIQUE constraint.
	_, err = s.CreateProduct(context.Background(), inventory.NewProduct{Name: "widget", Price: decimal.Zero})
	assert.NoError(t, err)

	_, err = s.CreateProduct(context.Background(), inventory.NewProduct{Name: "", Price: decimal.Zero})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestListProducts_OrderedByID(t *testing.T) {
	s := New(time.Second)
	for _, n := range []string{"a", "b", "c"} {
		seed(t, s, n, 1)
	}

	got, err := s.ListProducts(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "c", got[1].Name)

	got, err = s.ListProducts(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = s.ListProducts(context.Background(), 2, -3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
}

func TestInTx_RollbackDiscardsStagedWrites(t *testing.T) {
	s := New(time.Second)
	p := seed(t, s, "Widget", 10)
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(tx orders.Tx) error {
		if _, err := tx.LockProducts(context.Background(), []int64{p.ID}); err != nil {
			return err
		}
		if err := tx.DecrementStock(context.Background(), p.ID, 4); err != nil {
			return err
		}
		if _, err := tx.InsertOrder(context.Background(), orders.StatusPending); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.StockQuantity)

	_, err = s.GetOrder(context.Background(), 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDecrementStock_CountsStagedDecrements(t *testing.T) {
	s := New(time.Second)
	p := seed(t, s, "Widget", 10)

	err := s.InTx(context.Background(), func(tx orders.Tx) error {
		require.NoError(t, tx.DecrementStock(context.Background(), p.ID, 3))
		assert.Error(t, tx.DecrementStock(context.Background(), p.ID, 8))
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.StockQuantity)
}

func TestLockWaitTimesOut(t *testing.T) {
	s := New(50 * time.Millisecond)
	p := seed(t, s, "Held", 10)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InTx(context.Background(), func(tx orders.Tx) error {
			if _, err := tx.LockProducts(context.Background(), []int64{p.ID}); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	m := &orders.Manager{Store: s}
	_, err := m.Create(context.Background(), []inventory.Line{{ProductID: p.ID, Quantity: 1}})
	assert.ErrorIs(t, err, apperr.ErrContention)

	close(release)
	require.NoError(t, <-done)

	_, err = m.Create(context.Background(), []inventory.Line{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
}

func TestLockWaitHonoursContext(t *testing.T) {
	s := New(0)
	p := seed(t, s, "Held", 10)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InTx(context.Background(), func(tx orders.Tx) error {
			_, err := tx.LockProducts(context.Background(), []int64{p.ID})
			close(locked)
			<-release
			return err
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.InTx(ctx, func(tx orders.Tx) error {
		_, err := tx.LockProducts(ctx, []int64{p.ID})
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrContention)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}

func TestDeleteRules(t *testing.T) {
	s := New(time.Second)
	p := seed(t, s, "Widget", 10)
	m := &orders.Manager{Store: s}

	o, err := m.Create(context.Background(), []inventory.Line{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteProduct(context.Background(), p.ID), apperr.ErrConflict)
	require.NoError(t, s.DeleteOrder(context.Background(), o.ID))
	require.NoError(t, s.DeleteProduct(context.Background(), p.ID))

	_, err = s.GetOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, s.DeleteOrder(context.Background(), o.ID), apperr.ErrNotFound)
}

func TestInsertItem_RejectsDuplicateProduct(t *testing.T) {
	s := New(time.Second)
	p := seed(t, s, "Widget", 10)

	err := s.InTx(context.Background(), func(tx orders.Tx) error {
		o, err := tx.InsertOrder(context.Background(), orders.StatusPending)
		require.NoError(t, err)
		item := orders.OrderItem{OrderID: o.ID, ProductID: p.ID, Quantity: 1, PriceAtOrder: p.Price}
		_, err = tx.InsertItem(context.Background(), item)
		require.NoError(t, err)
		_, err = tx.InsertItem(context.Background(), item)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDeleteProduct_WaitsForReservation(t *testing.T) {
	s := New(50 * time.Millisecond)
	p := seed(t, s, "Widget", 5)

	err := s.InTx(context.Background(), func(tx orders.Tx) error {
		if _, err := inventory.Reserve(context.Background(), tx, inventory.Quantities{p.ID: 3}); err != nil {
			return err
		}
		assert.ErrorIs(t, s.DeleteProduct(context.Background(), p.ID), apperr.ErrContention)
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, 2, got.StockQuantity)
}

func TestDeleteOrder_WaitsForStatusChange(t *testing.T) {
	s := New(50 * time.Millisecond)
	p := seed(t, s, "Widget", 5)
	m := &orders.Manager{Store: s}
	o, err := m.Create(context.Background(), []inventory.Line{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	err = s.InTx(context.Background(), func(tx orders.Tx) error {
		if _, err := tx.LockOrder(context.Background(), o.ID); err != nil {
			return err
		}
		assert.ErrorIs(t, s.DeleteOrder(context.Background(), o.ID), apperr.ErrContention)
		return tx.SetStatus(context.Background(), o.ID, orders.StatusShipped)
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteOrder(context.Background(), o.ID))
	_, err = s.GetOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCommit_DoesNotResurrectDeletedRows(t *testing.T) {
	s := New(time.Second)
	p := seed(t, s, "Widget", 5)
	m := &orders.Manager{Store: s}
	o, err := m.Create(context.Background(), []inventory.Line{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	// Staged without taking the order's row lock.
	err = s.InTx(context.Background(), func(tx orders.Tx) error {
		require.NoError(t, tx.SetStatus(context.Background(), o.ID, orders.StatusShipped))
		require.NoError(t, s.DeleteOrder(context.Background(), o.ID))
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.GetOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Staged without taking the product's row lock.
	err = s.InTx(context.Background(), func(tx orders.Tx) error {
		require.NoError(t, tx.DecrementStock(context.Background(), p.ID, 3))
		require.NoError(t, s.DeleteProduct(context.Background(), p.ID))
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.GetProduct(context.Background(), p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := s.ListProducts(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
