package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainrl "github.com/lexportal/claimshield/pkg/domain/ratelimit"
	"github.com/lexportal/claimshield/pkg/domain/security"
	"github.com/lexportal/claimshield/pkg/middleware"
	"github.com/lexportal/claimshield/pkg/ratelimit"
	"github.com/lexportal/claimshield/pkg/sanitize"
)

type memoryRateRepository struct {
	mu      sync.Mutex
	records map[string][]*domainrl.Record
}

func newMemoryRateRepository() *memoryRateRepository {
	return &memoryRateRepository{records: make(map[string][]*domainrl.Record)}
}

func (r *memoryRateRepository) IncrementOrCreate(_ context.Context, record *domainrl.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Key] = append(r.records[record.Key], record)
	return nil
}

func (r *memoryRateRepository) UsageSince(_ context.Context, key string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, record := range r.records[key] {
		if !record.Bucket.Before(since) {
			total += record.Count
		}
	}
	return total, nil
}

func (r *memoryRateRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type memoryEventRepository struct {
	mu     sync.Mutex
	events []*security.Event
}

func (r *memoryEventRepository) Insert(_ context.Context, event *security.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memoryEventRepository) countByType(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, event := range r.events {
		if event.Type == eventType {
			count++
		}
	}
	return count
}

func newTestDefense(t *testing.T) (*middleware.DefenseMiddleware, *memoryEventRepository) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	limiter := ratelimit.NewLimiter(newMemoryRateRepository(), logger, nil)
	table := ratelimit.NewPolicyTable(map[string]ratelimit.Policy{
		"login": {MaxRequests: 2, Window: time.Minute},
	})
	events := &memoryEventRepository{}
	extractor := middleware.NewClientIPExtractor([]string{"X-Real-IP", "X-Forwarded-For"})
	sanitizer := sanitize.NewSanitizer(logger)

	defense := middleware.NewDefenseMiddleware(
		limiter,
		sanitize.NewFormSanitizer(sanitizer),
		events,
		table,
		extractor,
		map[string]sanitize.Config{
			"name":  sanitize.PersonName(),
			"email": sanitize.Email(),
		},
		logger,
	)
	return defense, events
}

type testResponse struct {
	Code   int
	Header http.Header
	Body   []byte
}

func postJSON(t *testing.T, app *fiber.App, path string, payload map[string]interface{}, clientIP string) testResponse {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Real-IP", clientIP)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return testResponse{Code: resp.StatusCode, Header: resp.Header, Body: data}
}

func TestForOperation_EnforcesQuota(t *testing.T) {
	defense, events := newTestDefense(t)
	app := fiber.New()
	app.Post("/auth/login", defense.ForOperation("login"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	payload := map[string]interface{}{"email": "a@b.com"}

	first := postJSON(t, app, "/auth/login", payload, "203.0.113.4")
	assert.Equal(t, fiber.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, first.Header.Get("X-RateLimit-Reset"))

	second := postJSON(t, app, "/auth/login", payload, "203.0.113.4")
	assert.Equal(t, fiber.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header.Get("X-RateLimit-Remaining"))

	third := postJSON(t, app, "/auth/login", payload, "203.0.113.4")
	assert.Equal(t, fiber.StatusTooManyRequests, third.Code)
	assert.Equal(t, "0", third.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", third.Header.Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(third.Body, &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(60), body["retry_after_seconds"])
	assert.NotEmpty(t, body["error"])

	require.Eventually(t, func() bool {
		return events.countByType(security.EventRateLimitExceeded) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestForOperation_CallersAreLimitedIndependently(t *testing.T) {
	defense, _ := newTestDefense(t)
	app := fiber.New()
	app.Post("/auth/login", defense.ForOperation("login"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	payload := map[string]interface{}{"email": "a@b.com"}
	for i := 0; i < 2; i++ {
		resp := postJSON(t, app, "/auth/login", payload, "203.0.113.4")
		require.Equal(t, fiber.StatusOK, resp.Code)
	}
	require.Equal(t, fiber.StatusTooManyRequests, postJSON(t, app, "/auth/login", payload, "203.0.113.4").Code)

	other := postJSON(t, app, "/auth/login", payload, "198.51.100.7")
	assert.Equal(t, fiber.StatusOK, other.Code)
	assert.Equal(t, "1", other.Header.Get("X-RateLimit-Remaining"))
}

func TestForOperation_SkipPredicateBypassesDefense(t *testing.T) {
	defense, _ := newTestDefense(t)
	app := fiber.New()
	skipAll := middleware.WithSkip(func(c *fiber.Ctx) bool { return true })
	app.Post("/auth/login", defense.ForOperation("login", skipAll), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 5; i++ {
		resp := postJSON(t, app, "/auth/login", map[string]interface{}{}, "203.0.113.4")
		require.Equal(t, fiber.StatusOK, resp.Code)
		assert.Empty(t, resp.Header.Get("X-RateLimit-Limit"))
	}
}

func TestForOperation_SanitizedPayloadReachesHandler(t *testing.T) {
	defense, events := newTestDefense(t)
	app := fiber.New()
	app.Post("/api/claims", defense.ForOperation("claim_submission"), func(c *fiber.Ctx) error {
		return c.JSON(middleware.SanitizedPayload(c))
	})

	resp := postJSON(t, app, "/api/claims", map[string]interface{}{
		"name":  "<script>alert(1)</script>John",
		"email": "john@example.com",
	}, "203.0.113.4")
	require.Equal(t, fiber.StatusOK, resp.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body, &payload))
	assert.Equal(t, "John", payload["name"])
	assert.Equal(t, "john@example.com", payload["email"])

	require.Eventually(t, func() bool {
		return events.countByType(security.EventThreatDetected) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestForOperation_RejectOnThreat(t *testing.T) {
	defense, _ := newTestDefense(t)
	app := fiber.New()
	app.Post("/admin/content",
		defense.ForOperation("content_mutation", middleware.WithRejectOnThreat()),
		func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		},
	)

	dirty := postJSON(t, app, "/admin/content", map[string]interface{}{
		"name": "<script>alert(1)</script>",
	}, "203.0.113.4")
	assert.Equal(t, fiber.StatusBadRequest, dirty.Code)

	clean := postJSON(t, app, "/admin/content", map[string]interface{}{
		"name": "Jane",
	}, "203.0.113.4")
	assert.Equal(t, fiber.StatusOK, clean.Code)
}

func TestForOperation_IdentityExtractorOverride(t *testing.T) {
	defense, _ := newTestDefense(t)
	app := fiber.New()
	byAccount := middleware.WithIdentityExtractor(func(c *fiber.Ctx) string {
		return c.Get("X-Account-ID")
	})
	app.Post("/auth/login", defense.ForOperation("login", byAccount), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func(account string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/auth/login", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Account-ID", account)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusOK, send("acct-1"))
	require.Equal(t, fiber.StatusOK, send("acct-1"))
	assert.Equal(t, fiber.StatusTooManyRequests, send("acct-1"))
	assert.Equal(t, fiber.StatusOK, send("acct-2"))
}

func TestForOperation_NonJSONBodyPassesThrough(t *testing.T) {
	defense, _ := newTestDefense(t)
	app := fiber.New()
	app.Post("/api/claims", defense.ForOperation("claim_submission"), func(c *fiber.Ctx) error {
		if middleware.SanitizedPayload(c) != nil {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(fiber.MethodPost, "/api/claims", bytes.NewReader([]byte("not json")))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
