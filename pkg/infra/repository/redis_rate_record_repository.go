package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lexportal/claimshield/pkg/domain/ratelimit"
)

const rateKeyPattern = "ratelimit:%s:%d"

type redisRateRecordRepository struct {
	client       *redis.Client
	granularity  time.Duration
	timeProvider func() time.Time
}

type RedisRateRecordOpts struct {
	Granularity  time.Duration
	TimeProvider func() time.Time
}

// NewRedisRateRecordRepository returns the redis-backed limiter store. Each
// (key, bucket) pair becomes one counter key incremented with INCR, which is
// atomic at the store. Expiry is delegated to key TTLs, so DeleteOlderThan is
// a no-op.
func NewRedisRateRecordRepository(client *redis.Client, opts *RedisRateRecordOpts) ratelimit.Repository {
	r := &redisRateRecordRepository{
		client:       client,
		granularity:  time.Minute,
		timeProvider: time.Now,
	}
	if opts != nil {
		if opts.Granularity > 0 {
			r.granularity = opts.Granularity
		}
		if opts.TimeProvider != nil {
			r.timeProvider = opts.TimeProvider
		}
	}
	return r
}

func (r *redisRateRecordRepository) IncrementOrCreate(ctx context.Context, record *ratelimit.Record) error {
	bucketKey := fmt.Sprintf(rateKeyPattern, record.Key, record.Bucket.Unix())
	ttl := time.Duration(record.WindowMs)*time.Millisecond + r.granularity

	pipe := r.client.TxPipeline()
	pipe.IncrBy(ctx, bucketKey, record.Count)
	pipe.Expire(ctx, bucketKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment rate record: %w", err)
	}
	return nil
}

func (r *redisRateRecordRepository) UsageSince(ctx context.Context, key string, since time.Time) (int64, error) {
	now := r.timeProvider()
	var bucketKeys []string
	for bucket := since.Truncate(r.granularity); !bucket.After(now); bucket = bucket.Add(r.granularity) {
		bucketKeys = append(bucketKeys, fmt.Sprintf(rateKeyPattern, key, bucket.Unix()))
	}
	if len(bucketKeys) == 0 {
		return 0, nil
	}

	values, err := r.client.MGet(ctx, bucketKeys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read rate records: %w", err)
	}

	var total int64
	for _, value := range values {
		if value == nil {
			continue
		}
		str, ok := value.(string)
		if !ok {
			continue
		}
		var count int64
		if _, err := fmt.Sscanf(str, "%d", &count); err == nil {
			total += count
		}
	}
	return total, nil
}

func (r *redisRateRecordRepository) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}
