package postgres

import (
	"context"

	"github.com/ariefcatur/go-inventory-orders/internal/audit"
)

// RecordAudit inserts e once; a repeated event id is ignored.
func (s *Store) RecordAudit(ctx context.Context, e audit.Entry) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO order_audit(event_id, event_type, order_id, occurred_at, payload)
		VALUES ($1::uuid, $2, $3, $4, $5::jsonb)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.EventType, e.OrderID, e.OccurredAt, string(e.Payload))
	if err != nil {
		return false, classify(err)
	}
	return ct.RowsAffected() == 1, nil
}

// AuditTrail returns the event types recorded for an order, oldest first.
func (s *Store) AuditTrail(ctx context.Context, orderID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type FROM order_audit
		WHERE order_id=$1 ORDER BY occurred_at, recorded_at`, orderID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
