package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	domain "github.com/lexportal/claimshield/pkg/domain/ratelimit"
	"github.com/lexportal/claimshield/pkg/infra/prometheus"
)

const (
	// DefaultGranularity is the sub-window bucket size: one counter row per
	// key per minute.
	DefaultGranularity = time.Minute

	defaultGCInterval = time.Minute
	storeCallTimeout  = 2 * time.Second
)

type Opts struct {
	TimeProvider func() time.Time
	Granularity  time.Duration
	GCInterval   time.Duration
	// MaxWindow bounds garbage collection: records older than now-MaxWindow
	// are dead under every policy.
	MaxWindow time.Duration
}

// Limiter decides whether a request identified by a limiter key is allowed
// under a (window, quota) policy, backed by a durable counter store.
//
// Updates for a key are serialized through a sharded mutex on top of the
// store's atomic increment, so concurrent consumers cannot undercount. When
// the store is unreachable the limiter fails open: availability is
// prioritized over strict enforcement.
type Limiter struct {
	repo         domain.Repository
	logger       *logrus.Logger
	breaker      *gobreaker.CircuitBreaker
	timeProvider func() time.Time
	granularity  time.Duration
	gcInterval   time.Duration
	maxWindow    time.Duration
	lastGC       atomic.Int64
	shards       [64]sync.Mutex
}

func NewLimiter(repo domain.Repository, logger *logrus.Logger, opts *Opts) *Limiter {
	l := &Limiter{
		repo:         repo,
		logger:       logger,
		timeProvider: time.Now,
		granularity:  DefaultGranularity,
		gcInterval:   defaultGCInterval,
		maxWindow:    24 * time.Hour,
	}
	if opts != nil {
		if opts.TimeProvider != nil {
			l.timeProvider = opts.TimeProvider
		}
		if opts.Granularity > 0 {
			l.granularity = opts.Granularity
		}
		if opts.GCInterval > 0 {
			l.gcInterval = opts.GCInterval
		}
		if opts.MaxWindow > 0 {
			l.maxWindow = opts.MaxWindow
		}
	}
	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "rate-limit-store",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})
	return l
}

// Check reports current usage for key without recording the request.
func (l *Limiter) Check(ctx context.Context, key string, policy Policy) domain.Result {
	now := l.timeProvider()
	usage, err := l.usage(ctx, key, now, policy.Window)
	if err != nil {
		return l.failOpen(key, policy, now, err)
	}

	if usage >= int64(policy.MaxRequests) {
		return denied(usage, policy, now)
	}
	return domain.Result{
		Allowed:   true,
		Count:     usage,
		Remaining: int64(policy.MaxRequests) - usage,
		ResetTime: now.Add(policy.Window),
	}
}

// Consume records the request against key if the policy still has quota.
// Denied requests are not recorded.
func (l *Limiter) Consume(ctx context.Context, key string, policy Policy) domain.Result {
	shard := &l.shards[shardIndex(key)]
	shard.Lock()
	defer shard.Unlock()

	now := l.timeProvider()
	usage, err := l.usage(ctx, key, now, policy.Window)
	if err != nil {
		return l.failOpen(key, policy, now, err)
	}

	if usage >= int64(policy.MaxRequests) {
		return denied(usage, policy, now)
	}

	record := &domain.Record{
		ID:          uuid.New(),
		Key:         key,
		Bucket:      now.Truncate(l.granularity),
		Count:       1,
		WindowMs:    policy.Window.Milliseconds(),
		MaxRequests: policy.MaxRequests,
		CreatedAt:   now,
	}
	if _, err := l.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
		defer cancel()
		return nil, l.repo.IncrementOrCreate(callCtx, record)
	}); err != nil {
		return l.failOpen(key, policy, now, err)
	}

	l.maybeCollect(now)

	return domain.Result{
		Allowed:   true,
		Count:     usage + 1,
		Remaining: int64(policy.MaxRequests) - usage - 1,
		ResetTime: now.Add(policy.Window),
	}
}

func (l *Limiter) usage(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	sum, err := l.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
		defer cancel()
		return l.repo.UsageSince(callCtx, key, now.Add(-window))
	})
	if err != nil {
		return 0, err
	}
	count, ok := sum.(int64)
	if !ok {
		return 0, nil
	}
	return count, nil
}

func (l *Limiter) failOpen(key string, policy Policy, now time.Time, err error) domain.Result {
	l.logger.WithError(err).WithField("key", key).Error("rate limit store unavailable, failing open")
	prometheus.LimiterFailOpen.Inc()
	return domain.Result{
		Allowed:   true,
		Count:     0,
		Remaining: int64(policy.MaxRequests),
		ResetTime: now.Add(policy.Window),
	}
}

// maybeCollect garbage-collects expired records at most once per gcInterval.
// Collection runs asynchronously and never delays the request path.
func (l *Limiter) maybeCollect(now time.Time) {
	last := l.lastGC.Load()
	if now.UnixNano()-last < l.gcInterval.Nanoseconds() {
		return
	}
	if !l.lastGC.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	cutoff := now.Add(-l.maxWindow - l.granularity)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		deleted, err := l.repo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			l.logger.WithError(err).Warn("rate limit record cleanup failed")
			return
		}
		if deleted > 0 {
			l.logger.WithField("deleted", deleted).Debug("expired rate limit records removed")
		}
	}()
}

func denied(usage int64, policy Policy, now time.Time) domain.Result {
	return domain.Result{
		Allowed:           false,
		Count:             usage,
		Remaining:         0,
		ResetTime:         now.Add(policy.Window),
		RetryAfterSeconds: retryAfterSeconds(policy.Window),
	}
}

// retryAfterSeconds is ceil(window in ms / 1000).
func retryAfterSeconds(window time.Duration) int {
	ms := window.Milliseconds()
	return int((ms + 999) / 1000)
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % 64)
}
