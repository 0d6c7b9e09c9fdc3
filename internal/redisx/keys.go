package redisx

import "time"

const (
	// idem:{scope}:{client key} -> pending marker or stored response
	KeyIdempotency = "idem:%s:%s"

	// dedup:{service}:{event id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLInFlight    = 30 * time.Second
	TTLDedup       = 48 * time.Hour
)
