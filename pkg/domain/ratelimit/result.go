package ratelimit

import "time"

// Result is the outcome of a single limiter decision.
type Result struct {
	Allowed           bool      `json:"allowed"`
	Count             int64     `json:"count"`
	Remaining         int64     `json:"remaining"`
	ResetTime         time.Time `json:"reset_time"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
}
