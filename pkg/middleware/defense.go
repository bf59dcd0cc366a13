package middleware

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lexportal/claimshield/pkg/common"
	"github.com/lexportal/claimshield/pkg/domain/security"
	"github.com/lexportal/claimshield/pkg/infra/prometheus"
	"github.com/lexportal/claimshield/pkg/ratelimit"
	"github.com/lexportal/claimshield/pkg/sanitize"
)

// DefenseMiddleware composes the rate limiter and the form sanitizer around
// request handlers. Per request: limiter check first, payload sanitization
// only if allowed, quota metadata on every outbound response. Threat
// detections are emitted as security events but do not block by default.
type DefenseMiddleware struct {
	limiter       *ratelimit.Limiter
	form          *sanitize.FormSanitizer
	events        security.Repository
	policies      *ratelimit.PolicyTable
	extractor     *ClientIPExtractor
	fieldPolicies map[string]sanitize.Config
	logger        *logrus.Logger
}

func NewDefenseMiddleware(
	limiter *ratelimit.Limiter,
	form *sanitize.FormSanitizer,
	events security.Repository,
	policies *ratelimit.PolicyTable,
	extractor *ClientIPExtractor,
	fieldPolicies map[string]sanitize.Config,
	logger *logrus.Logger,
) *DefenseMiddleware {
	return &DefenseMiddleware{
		limiter:       limiter,
		form:          form,
		events:        events,
		policies:      policies,
		extractor:     extractor,
		fieldPolicies: fieldPolicies,
		logger:        logger,
	}
}

type defenseOptions struct {
	skip           func(*fiber.Ctx) bool
	identity       func(*fiber.Ctx) string
	rejectOnThreat bool
}

type DefenseOption func(*defenseOptions)

// WithSkip bypasses the defense layer entirely when the predicate matches.
func WithSkip(predicate func(*fiber.Ctx) bool) DefenseOption {
	return func(o *defenseOptions) {
		o.skip = predicate
	}
}

// WithIdentityExtractor overrides caller-identity derivation for one
// operation, e.g. keying two-factor attempts by account instead of address.
func WithIdentityExtractor(fn func(*fiber.Ctx) string) DefenseOption {
	return func(o *defenseOptions) {
		o.identity = fn
	}
}

// WithRejectOnThreat makes the operation refuse requests whose payload
// triggered any detection instead of passing the sanitized payload through.
func WithRejectOnThreat() DefenseOption {
	return func(o *defenseOptions) {
		o.rejectOnThreat = true
	}
}

func (m *DefenseMiddleware) ForOperation(operation string, opts ...DefenseOption) fiber.Handler {
	options := defenseOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return func(c *fiber.Ctx) error {
		if options.skip != nil && options.skip(c) {
			return c.Next()
		}

		caller := m.callerIdentity(c, options)
		policy := m.policies.For(operation)
		key := operation + ":" + caller

		result := m.limiter.Consume(c.Context(), key, policy)

		c.Set("X-RateLimit-Limit", strconv.Itoa(policy.MaxRequests))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

		if !result.Allowed {
			c.Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
			prometheus.RequestsTotal.WithLabelValues(operation, "denied").Inc()
			m.emitEvent(&security.Event{
				ID:        uuid.New(),
				Type:      security.EventRateLimitExceeded,
				Message:   "rate limit exceeded for " + operation,
				Caller:    caller,
				Operation: operation,
				Metadata: security.Metadata{
					"count":     result.Count,
					"limit":     policy.MaxRequests,
					"window_ms": policy.Window.Milliseconds(),
				},
			})
			m.logger.WithFields(logrus.Fields{
				"operation": operation,
				"caller":    caller,
				"count":     result.Count,
			}).Warn("rate limit exceeded")

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":             false,
				"error":               "Too many requests, please try again later",
				"retry_after_seconds": result.RetryAfterSeconds,
				"reset_time":          result.ResetTime.Unix(),
			})
		}

		prometheus.RequestsTotal.WithLabelValues(operation, "allowed").Inc()
		c.Locals(common.CallerIdentityContextKey.String(), caller)
		c.Locals(common.OperationContextKey.String(), operation)

		if threats, err := m.sanitizePayload(c, operation, caller); err == nil && len(threats) > 0 && options.rejectOnThreat {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Request rejected: suspicious content detected",
			})
		}

		return c.Next()
	}
}

// sanitizePayload runs the form sanitizer over a JSON body and stores the
// cleaned payload plus the per-field threat map in request locals. Bodies
// that are not JSON objects pass through untouched.
func (m *DefenseMiddleware) sanitizePayload(c *fiber.Ctx, operation, caller string) (map[string][]sanitize.Threat, error) {
	body := c.Body()
	if len(body) == 0 {
		return nil, nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	result := m.form.SanitizeForm(payload, m.fieldPolicies)
	c.Locals(common.SanitizedPayloadContextKey.String(), result.Sanitized)
	c.Locals(common.ThreatsContextKey.String(), result.Threats)

	if len(result.Threats) > 0 {
		metadata := security.Metadata{}
		for field, threats := range result.Threats {
			categories := make([]string, 0, len(threats))
			for _, threat := range threats {
				categories = append(categories, string(threat))
				prometheus.ThreatsDetected.WithLabelValues(operation, string(threat)).Inc()
			}
			metadata[field] = categories
		}
		m.emitEvent(&security.Event{
			ID:        uuid.New(),
			Type:      security.EventThreatDetected,
			Message:   "suspicious content detected in " + operation + " payload",
			Caller:    caller,
			Operation: operation,
			Metadata:  metadata,
		})
		m.logger.WithFields(logrus.Fields{
			"operation": operation,
			"caller":    caller,
			"fields":    len(result.Threats),
		}).Warn("threats detected in request payload")
	}

	return result.Threats, nil
}

func (m *DefenseMiddleware) callerIdentity(c *fiber.Ctx, options defenseOptions) string {
	if options.identity != nil {
		if id := options.identity(c); id != "" {
			return id
		}
		return UnknownCaller
	}
	return m.extractor.Extract(c)
}

// emitEvent writes the audit record asynchronously. A failed write is logged
// and never blocks or rejects the request.
func (m *DefenseMiddleware) emitEvent(event *security.Event) {
	event.CreatedAt = time.Now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.events.Insert(ctx, event); err != nil {
			m.logger.WithError(err).Error("failed to insert security event")
		}
	}()
}

// SanitizedPayload returns the cleaned payload stored by the middleware, or
// nil when the request carried no JSON object body.
func SanitizedPayload(c *fiber.Ctx) map[string]interface{} {
	payload, _ := c.Locals(common.SanitizedPayloadContextKey.String()).(map[string]interface{})
	return payload
}

// DetectedThreats returns the per-field threat map for handlers that want to
// reject on detection rather than accept sanitized input.
func DetectedThreats(c *fiber.Ctx) map[string][]sanitize.Threat {
	threats, _ := c.Locals(common.ThreatsContextKey.String()).(map[string][]sanitize.Threat)
	return threats
}
