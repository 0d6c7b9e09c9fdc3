package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type State int

const (
	// Started means the caller owns the key and must Complete or Abort it.
	Started State = iota
	InFlight
	Done
)

// Response is what a completed request stored for replay.
type Response struct {
	Code int             `json:"code"`
	Body json.RawMessage `json:"body"`
}

type record struct {
	Pending  bool      `json:"pending,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// Idempotency guards a request scope (e.g. "order:create") against replays
// carrying the same client key.
type Idempotency struct {
	rdb   redis.Cmdable
	scope string
}

func NewIdempotency(rdb redis.Cmdable, scope string) *Idempotency {
	return &Idempotency{rdb: rdb, scope: scope}
}

func (i *Idempotency) key(k string) string { return fmt.Sprintf(KeyIdempotency, i.scope, k) }

// Begin claims key. A Done state comes with the stored response.
func (i *Idempotency) Begin(ctx context.Context, key string) (State, *Response, error) {
	pending, _ := json.Marshal(record{Pending: true})
	ok, err := i.rdb.SetNX(ctx, i.key(key), pending, TTLInFlight).Result()
	if err != nil {
		return 0, nil, fmt.Errorf("idempotency claim: %w", err)
	}
	if ok {
		return Started, nil, nil
	}

	raw, err := i.rdb.Get(ctx, i.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; the caller may retry
		return InFlight, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("idempotency read: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return 0, nil, fmt.Errorf("idempotency decode: %w", err)
	}
	if rec.Pending || rec.Response == nil {
		return InFlight, nil, nil
	}
	return Done, rec.Response, nil
}

// Complete stores the response for replay.
func (i *Idempotency) Complete(ctx context.Context, key string, resp Response) error {
	b, err := json.Marshal(record{Response: &resp})
	if err != nil {
		return err
	}
	return i.rdb.Set(ctx, i.key(key), b, TTLIdempotency).Err()
}

// Abort releases key so the request can be retried.
func (i *Idempotency) Abort(ctx context.Context, key string) error {
	return i.rdb.Del(ctx, i.key(key)).Err()
}
