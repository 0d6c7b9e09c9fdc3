// Package audit records order events consumed from Kafka into an
// append-only trail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-inventory-orders/internal/kafka"
	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-inventory-orders/internal/audit")

type Entry struct {
	EventID    string
	EventType  string
	OrderID    int64
	OccurredAt time.Time
	Payload    json.RawMessage
}

// orderRef is the field every order event payload shares.
type orderRef struct {
	OrderID int64 `json:"order_id"`
}

// Sink stores entries. Storing an event id twice must be a no-op that
// reports inserted=false.
type Sink interface {
	RecordAudit(ctx context.Context, e Entry) (inserted bool, err error)
}

// Deduper is satisfied by *redisx.Dedup.
type Deduper interface {
	First(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type Handler struct {
	Sink  Sink
	Dedup Deduper // optional
}

// Handle is a kafka.Handler. Malformed messages are logged and skipped so
// they do not block the partition.
func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	ctx, span := tracer.Start(kafkax.ExtractTrace(ctx, m), "audit.record",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination.name", m.Topic)))
	defer span.End()

	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.EventID == "" {
		log.Warn().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).Msg("skip malformed event")
		return nil
	}
	ref, err := kafkax.UnwrapPayload[orderRef](env.Payload)
	if err != nil || ref.OrderID == 0 {
		log.Warn().Err(err).Str("event_id", env.EventID).Msg("skip event without order id")
		return nil
	}

	if h.Dedup != nil {
		first, err := h.Dedup.First(ctx, env.EventID)
		if err != nil {
			return err
		}
		if !first {
			log.Debug().Str("event_id", env.EventID).Msg("duplicate event")
			return nil
		}
	}

	inserted, err := h.Sink.RecordAudit(ctx, Entry{
		EventID:    env.EventID,
		EventType:  env.EventType,
		OrderID:    ref.OrderID,
		OccurredAt: env.OccurredAt,
		Payload:    env.Payload,
	})
	if err != nil {
		if h.Dedup != nil {
			if ferr := h.Dedup.Forget(ctx, env.EventID); ferr != nil {
				log.Error().Err(ferr).Str("event_id", env.EventID).Msg("dedup forget")
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("record %s: %w", env.EventID, err)
	}

	log.Info().
		Str("event_id", env.EventID).
		Str("event_type", env.EventType).
		Int64("order_id", ref.OrderID).
		Bool("inserted", inserted).
		Msg("audit recorded")
	return nil
}
