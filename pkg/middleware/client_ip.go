package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UnknownCaller is the sentinel identity when no source address can be
// derived from the request.
const UnknownCaller = "unknown"

// ClientIPExtractor derives caller identity from the first non-empty header
// in a configured trusted list. Which headers are trusted is deployment
// policy: only headers set by a known proxy chain should appear here.
type ClientIPExtractor struct {
	trustedHeaders []string
}

func NewClientIPExtractor(trustedHeaders []string) *ClientIPExtractor {
	return &ClientIPExtractor{trustedHeaders: trustedHeaders}
}

func (e *ClientIPExtractor) Extract(c *fiber.Ctx) string {
	for _, header := range e.trustedHeaders {
		if value := c.Get(header); value != "" {
			// X-Forwarded-For may carry a hop list; the client is first.
			if idx := strings.IndexByte(value, ','); idx >= 0 {
				value = value[:idx]
			}
			return strings.TrimSpace(value)
		}
	}
	if ip := c.IP(); ip != "" {
		return ip
	}
	return UnknownCaller
}
