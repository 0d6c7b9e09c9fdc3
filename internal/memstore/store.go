// Package memstore is an in-process implementation of the order and product
// storage. Row locks are per-id channel mutexes with a bounded wait, and
// writes are staged per transaction and applied only on commit.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/go-inventory-orders/internal/apperr"
	"github.com/ariefcatur/go-inventory-orders/internal/inventory"
	"github.com/ariefcatur/go-inventory-orders/internal/orders"
)

var errLockTimeout = errors.New("lock wait timeout")

type rowLock chan struct{}

func newRowLock() rowLock { return make(rowLock, 1) }

// acquire waits at most timeout (0 waits until ctx is done).
func (l rowLock) acquire(ctx context.Context, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case l <- struct{}{}:
		return nil
	case <-expired:
		return apperr.Contention(errLockTimeout)
	case <-ctx.Done():
		return apperr.Contention(ctx.Err())
	}
}

func (l rowLock) release() { <-l }

type Store struct {
	lockTimeout time.Duration
	now         func() time.Time

	mu          sync.RWMutex
	products    map[int64]inventory.Product
	names       map[string]int64
	productLock map[int64]rowLock
	orders      map[int64]orders.Order
	orderLock   map[int64]rowLock
	nextProduct int64
	nextOrder   int64
	nextItem    int64
}

func New(lockTimeout time.Duration) *Store {
	return &Store{
		lockTimeout: lockTimeout,
		now:         time.Now,
		products:    map[int64]inventory.Product{},
		names:       map[string]int64{},
		productLock: map[int64]rowLock{},
		orders:      map[int64]orders.Order{},
		orderLock:   map[int64]rowLock{},
	}
}

func (s *Store) CreateProduct(_ context.Context, p inventory.NewProduct) (inventory.Product, error) {
	if err := p.Validate(); err != nil {
		return inventory.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.names[p.Name]; dup {
		return inventory.Product{}, apperr.Conflict(fmt.Errorf("product name %q already exists", p.Name))
	}
	s.nextProduct++
	out := inventory.Product{
		ID:            s.nextProduct,
		Name:          p.Name,
		Price:         p.Price.Round(2),
		StockQuantity: p.StockQuantity,
	}
	s.products[out.ID] = out
	s.names[p.Name] = out.ID
	s.productLock[out.ID] = newRowLock()
	return out, nil
}

func (s *Store) ListProducts(_ context.Context, limit, offset int) ([]inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := []inventory.Product{}
	for i := max(offset, 0); i < len(ids) && len(out) < limit; i++ {
		out = append(out, s.products[ids[i]])
	}
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return inventory.Product{}, apperr.NotFound("product", id)
	}
	return p, nil
}

func (s *Store) GetOrder(_ context.Context, id int64) (orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, apperr.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

// DeleteOrder removes an order together with its items. It waits for the
// order's row lock like any writer.
func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	s.mu.RLock()
	l, ok := s.orderLock[id]
	s.mu.RUnlock()
	if !ok {
		return apperr.NotFound("order", id)
	}
	if err := l.acquire(ctx, s.lockTimeout); err != nil {
		return err
	}
	defer l.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return apperr.NotFound("order", id)
	}
	delete(s.orders, id)
	delete(s.orderLock, id)
	return nil
}

// DeleteProduct refuses while any order item references the product. It
// waits for the product's row lock, so a reservation in flight finishes
// first.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	s.mu.RLock()
	l, ok := s.productLock[id]
	s.mu.RUnlock()
	if !ok {
		return apperr.NotFound("product", id)
	}
	if err := l.acquire(ctx, s.lockTimeout); err != nil {
		return err
	}
	defer l.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return apperr.NotFound("product", id)
	}
	for _, o := range s.orders {
		for _, it := range o.Items {
			if it.ProductID == id {
				return apperr.Conflict(fmt.Errorf("product %d is referenced by order %d", id, o.ID))
			}
		}
	}
	delete(s.products, id)
	delete(s.names, p.Name)
	delete(s.productLock, id)
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(orders.Tx) error) error {
	tx := &memTx{s: s, decrements: map[int64]int{}, statuses: map[int64]orders.Status{}}
	defer tx.releaseAll()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperr.Contention(err)
	}
	return tx.commit()
}

type memTx struct {
	s *Store

	held       []rowLock
	decrements map[int64]int
	newOrders  []orders.Order
	statuses   map[int64]orders.Status
}

func (t *memTx) releaseAll() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].release()
	}
	t.held = nil
}

func (t *memTx) lock(ctx context.Context, l rowLock) error {
	if err := l.acquire(ctx, t.s.lockTimeout); err != nil {
		return err
	}
	t.held = append(t.held, l)
	return nil
}

func (t *memTx) LockProducts(ctx context.Context, ids []int64) ([]inventory.Product, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var out []inventory.Product
	for _, id := range sorted {
		t.s.mu.RLock()
		l, ok := t.s.productLock[id]
		t.s.mu.RUnlock()
		if !ok {
			continue
		}
		if err := t.lock(ctx, l); err != nil {
			return nil, err
		}
		t.s.mu.RLock()
		p, ok := t.s.products[id]
		t.s.mu.RUnlock()
		if ok {
			p.StockQuantity -= t.decrements[id]
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, qty int) error {
	t.s.mu.RLock()
	p, ok := t.s.products[productID]
	t.s.mu.RUnlock()
	if !ok {
		return apperr.NotFound("product", productID)
	}
	if p.StockQuantity-t.decrements[productID]-qty < 0 {
		return apperr.Conflict(fmt.Errorf("stock of product %d would become negative", productID))
	}
	t.decrements[productID] += qty
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, status orders.Status) (orders.Order, error) {
	t.s.mu.Lock()
	t.s.nextOrder++
	o := orders.Order{ID: t.s.nextOrder, CreatedAt: t.s.now().UTC(), Status: status}
	t.s.mu.Unlock()

	t.newOrders = append(t.newOrders, o)
	return o, nil
}

func (t *memTx) InsertItem(_ context.Context, it orders.OrderItem) (orders.OrderItem, error) {
	if it.Quantity <= 0 {
		return orders.OrderItem{}, apperr.Conflict(fmt.Errorf("quantity must be positive"))
	}
	for i := range t.newOrders {
		o := &t.newOrders[i]
		if o.ID != it.OrderID {
			continue
		}
		for _, existing := range o.Items {
			if existing.ProductID == it.ProductID {
				return orders.OrderItem{}, apperr.Conflict(fmt.Errorf("order %d already has product %d", it.OrderID, it.ProductID))
			}
		}
		t.s.mu.Lock()
		t.s.nextItem++
		it.ID = t.s.nextItem
		t.s.mu.Unlock()
		o.Items = append(o.Items, it)
		return it, nil
	}
	return orders.OrderItem{}, apperr.Conflict(fmt.Errorf("order %d not created in this transaction", it.OrderID))
}

func (t *memTx) LockOrder(ctx context.Context, id int64) (orders.Order, error) {
	t.s.mu.RLock()
	l, ok := t.s.orderLock[id]
	t.s.mu.RUnlock()
	if !ok {
		return orders.Order{}, apperr.NotFound("order", id)
	}
	if err := t.lock(ctx, l); err != nil {
		return orders.Order{}, err
	}
	t.s.mu.RLock()
	o, ok := t.s.orders[id]
	t.s.mu.RUnlock()
	if !ok {
		return orders.Order{}, apperr.NotFound("order", id)
	}
	if st, staged := t.statuses[id]; staged {
		o.Status = st
	}
	return cloneOrder(o), nil
}

func (t *memTx) SetStatus(_ context.Context, id int64, st orders.Status) error {
	t.s.mu.RLock()
	_, ok := t.s.orders[id]
	t.s.mu.RUnlock()
	if !ok {
		return apperr.NotFound("order", id)
	}
	t.statuses[id] = st
	return nil
}

func (t *memTx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	// Rows may have been deleted by a writer that did not share our locks.
	for id, qty := range t.decrements {
		p, ok := t.s.products[id]
		if !ok {
			return apperr.NotFound("product", id)
		}
		if p.StockQuantity < qty {
			return apperr.Conflict(fmt.Errorf("stock of product %d would become negative", id))
		}
	}
	for _, o := range t.newOrders {
		for _, it := range o.Items {
			if _, ok := t.s.products[it.ProductID]; !ok {
				return apperr.Conflict(fmt.Errorf("order item references missing product %d", it.ProductID))
			}
		}
	}
	for id := range t.statuses {
		if _, ok := t.s.orders[id]; !ok {
			return apperr.NotFound("order", id)
		}
	}

	for id, qty := range t.decrements {
		p := t.s.products[id]
		p.StockQuantity -= qty
		t.s.products[id] = p
	}
	for _, o := range t.newOrders {
		slices.SortFunc(o.Items, func(a, b orders.OrderItem) int { return cmp.Compare(a.ProductID, b.ProductID) })
		t.s.orders[o.ID] = o
		t.s.orderLock[o.ID] = newRowLock()
	}
	for id, st := range t.statuses {
		o := t.s.orders[id]
		o.Status = st
		t.s.orders[id] = o
	}
	return nil
}

func cloneOrder(o orders.Order) orders.Order {
	o.Items = slices.Clone(o.Items)
	if o.Items == nil {
		o.Items = []orders.OrderItem{}
	}
	return o
}
