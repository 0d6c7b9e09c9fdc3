package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-inventory-orders/internal/apperr"
	"github.com/ariefcatur/go-inventory-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-inventory-orders/internal/kafka"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-inventory-orders/internal/orders")

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Manager places orders and moves them through the status table.
type Manager struct {
	Store Store

	// Optional. Events are published only after commit.
	CreatedEvents Publisher
	StatusEvents  Publisher
	Service       string
}

// Create reserves stock for lines and records a Pending order with a price
// snapshot per product, all in one transaction.
func (m *Manager) Create(ctx context.Context, lines []inventory.Line) (Order, error) {
	ctx, span := tracer.Start(ctx, "orders.create")
	defer span.End()

	q, err := inventory.Aggregate(lines)
	if err != nil {
		return Order{}, fail(span, err)
	}

	var order Order
	err = m.Store.InTx(ctx, func(tx Tx) error {
		reserved, err := inventory.Reserve(ctx, tx, q)
		if err != nil {
			return err
		}
		o, err := tx.InsertOrder(ctx, StatusPending)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		o.Items = make([]OrderItem, 0, len(reserved))
		for _, r := range reserved {
			it, err := tx.InsertItem(ctx, OrderItem{
				OrderID:      o.ID,
				ProductID:    r.Product.ID,
				Quantity:     r.Quantity,
				PriceAtOrder: r.Product.Price,
			})
			if err != nil {
				return fmt.Errorf("insert item for product %d: %w", r.Product.ID, err)
			}
			o.Items = append(o.Items, it)
		}
		order = o
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Int("products", len(q)).Msg("create order failed")
		return Order{}, fail(span, err)
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID), attribute.Int("order.items", len(order.Items)))
	log.Info().Int64("order_id", order.ID).Int("items", len(order.Items)).Str("total", order.Total().StringFixed(2)).Msg("order created")

	m.publish(ctx, m.CreatedEvents, EventOrderCreated, order.ID, createdPayload(order))
	return order, nil
}

// UpdateStatus applies a transition under the order row lock. Requesting the
// current status is a successful no-op.
func (m *Manager) UpdateStatus(ctx context.Context, id int64, to Status) (Order, error) {
	ctx, span := tracer.Start(ctx, "orders.update_status",
		trace.WithAttributes(attribute.Int64("order.id", id), attribute.String("order.status.to", string(to))))
	defer span.End()

	if !to.Valid() {
		return Order{}, fail(span, apperr.Invalid("unknown status %q", to))
	}

	var (
		order Order
		from  Status
	)
	err := m.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status
		if o.Status != to {
			if !CanTransition(o.Status, to) {
				return &apperr.InvalidTransitionError{From: string(o.Status), To: string(to)}
			}
			if err := tx.SetStatus(ctx, id, to); err != nil {
				return fmt.Errorf("set status: %w", err)
			}
			o.Status = to
		}
		order = o
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Int64("order_id", id).Str("to", string(to)).Msg("update order status failed")
		return Order{}, fail(span, err)
	}

	if from == to {
		log.Debug().Int64("order_id", id).Str("status", string(to)).Msg("status unchanged")
		return order, nil
	}

	log.Info().Int64("order_id", id).Str("from", string(from)).Str("to", string(to)).Msg("order status changed")
	m.publish(ctx, m.StatusEvents, EventOrderStatusChanged, id, OrderStatusChangedPayload{OrderID: id, From: from, To: to})
	return order, nil
}

func (m *Manager) Get(ctx context.Context, id int64) (Order, error) {
	ctx, span := tracer.Start(ctx, "orders.get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	o, err := m.Store.GetOrder(ctx, id)
	if err != nil {
		return Order{}, fail(span, err)
	}
	return o, nil
}

func (m *Manager) publish(ctx context.Context, p Publisher, eventType string, orderID int64, payload any) {
	if p == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      m.Service,
		CorrelationID: fmt.Sprint(orderID),
		Payload:       kafkax.MustMarshal(payload),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	headers := kafkax.InjectTrace(ctx, []kafkago.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte("1")},
	})
	p.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev), headers...)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
