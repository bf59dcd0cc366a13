package ratelimit_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/lexportal/claimshield/pkg/domain/ratelimit"
	"github.com/lexportal/claimshield/pkg/ratelimit"
)

type fakeRateRecordRepository struct {
	mu      sync.Mutex
	records map[string]map[int64]int64
	failing bool
}

func newFakeRateRecordRepository() *fakeRateRecordRepository {
	return &fakeRateRecordRepository{records: make(map[string]map[int64]int64)}
}

func (f *fakeRateRecordRepository) IncrementOrCreate(_ context.Context, record *domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("store unavailable")
	}
	buckets, ok := f.records[record.Key]
	if !ok {
		buckets = make(map[int64]int64)
		f.records[record.Key] = buckets
	}
	buckets[record.Bucket.UnixNano()] += record.Count
	return nil
}

func (f *fakeRateRecordRepository) UsageSince(_ context.Context, key string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errors.New("store unavailable")
	}
	var total int64
	for bucket, count := range f.records[key] {
		if bucket >= since.UnixNano() {
			total += count
		}
	}
	return total, nil
}

func (f *fakeRateRecordRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for _, buckets := range f.records {
		for bucket := range buckets {
			if bucket < cutoff.UnixNano() {
				delete(buckets, bucket)
				deleted++
			}
		}
	}
	return deleted, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(repo domain.Repository, clock *fakeClock) *ratelimit.Limiter {
	return ratelimit.NewLimiter(repo, testLogger(), &ratelimit.Opts{
		TimeProvider: clock.Now,
		Granularity:  time.Millisecond,
	})
}

func TestConsume_QuotaExhaustion(t *testing.T) {
	repo := newFakeRateRecordRepository()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	limiter := newTestLimiter(repo, clock)

	policy := ratelimit.Policy{MaxRequests: 5, Window: 15 * time.Minute}
	key := "login:203.0.113.4"

	for i := 0; i < 5; i++ {
		result := limiter.Consume(context.Background(), key, policy)
		require.True(t, result.Allowed, "call %d should be allowed", i+1)
		assert.Equal(t, int64(4-i), result.Remaining)
		assert.Equal(t, int64(i+1), result.Count)
	}

	result := limiter.Consume(context.Background(), key, policy)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)
	assert.Equal(t, 900, result.RetryAfterSeconds)
}

func TestConsume_WindowSlides(t *testing.T) {
	repo := newFakeRateRecordRepository()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	limiter := newTestLimiter(repo, clock)

	policy := ratelimit.Policy{MaxRequests: 2, Window: time.Second}
	key := "login:1.2.3.4"

	first := limiter.Consume(context.Background(), key, policy)
	require.True(t, first.Allowed)
	assert.Equal(t, int64(1), first.Remaining)

	second := limiter.Consume(context.Background(), key, policy)
	require.True(t, second.Allowed)
	assert.Equal(t, int64(0), second.Remaining)

	third := limiter.Consume(context.Background(), key, policy)
	require.False(t, third.Allowed)
	assert.Equal(t, 1, third.RetryAfterSeconds)

	clock.Advance(1100 * time.Millisecond)

	fourth := limiter.Consume(context.Background(), key, policy)
	require.True(t, fourth.Allowed)
	assert.Equal(t, int64(1), fourth.Remaining)
}

func TestConsume_DeniedRequestsAreNotRecorded(t *testing.T) {
	repo := newFakeRateRecordRepository()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	limiter := newTestLimiter(repo, clock)

	policy := ratelimit.Policy{MaxRequests: 1, Window: time.Minute}
	key := "two_factor:203.0.113.9"

	require.True(t, limiter.Consume(context.Background(), key, policy).Allowed)
	for i := 0; i < 3; i++ {
		require.False(t, limiter.Consume(context.Background(), key, policy).Allowed)
	}

	usage, err := repo.UsageSince(context.Background(), key, clock.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage)
}

func TestCheck_DoesNotRecord(t *testing.T) {
	repo := newFakeRateRecordRepository()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	limiter := newTestLimiter(repo, clock)

	policy := ratelimit.Policy{MaxRequests: 3, Window: time.Minute}
	key := "api:198.51.100.7"

	for i := 0; i < 4; i++ {
		result := limiter.Check(context.Background(), key, policy)
		require.True(t, result.Allowed)
		assert.Equal(t, int64(3), result.Remaining)
	}

	usage, err := repo.UsageSince(context.Background(), key, clock.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage)
}

func TestConsume_FailsOpenOnStoreError(t *testing.T) {
	repo := newFakeRateRecordRepository()
	repo.failing = true
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	limiter := newTestLimiter(repo, clock)

	policy := ratelimit.Policy{MaxRequests: 5, Window: 15 * time.Minute}

	result := limiter.Consume(context.Background(), "login:203.0.113.4", policy)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(5), result.Remaining)
}

func TestConsume_ConcurrentCallersNeverExceedQuota(t *testing.T) {
	repo := newFakeRateRecordRepository()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	limiter := newTestLimiter(repo, clock)

	policy := ratelimit.Policy{MaxRequests: 10, Window: time.Minute}
	key := "claim_submission:203.0.113.4"

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Consume(context.Background(), key, policy).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)

	usage, err := repo.UsageSince(context.Background(), key, clock.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(10), usage)
}

func TestRetryAfterRoundsUp(t *testing.T) {
	repo := newFakeRateRecordRepository()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	limiter := newTestLimiter(repo, clock)

	policy := ratelimit.Policy{MaxRequests: 1, Window: 1500 * time.Millisecond}
	key := "upload:192.0.2.1"

	require.True(t, limiter.Consume(context.Background(), key, policy).Allowed)
	denied := limiter.Consume(context.Background(), key, policy)
	require.False(t, denied.Allowed)
	assert.Equal(t, 2, denied.RetryAfterSeconds)
}
