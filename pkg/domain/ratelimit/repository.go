package ratelimit

import (
	"context"
	"time"
)

// Repository is the durable store contract for limiter counters. Increments
// must be atomic at the store: concurrent calls for the same (key, bucket) may
// never lose updates.
type Repository interface {
	IncrementOrCreate(ctx context.Context, record *Record) error
	UsageSince(ctx context.Context, key string, since time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
