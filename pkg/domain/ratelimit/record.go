package ratelimit

import (
	"time"

	"github.com/google/uuid"
)

// Record is one durable counter row per (limiter key, time bucket). The sum of
// Count across all records for a key whose bucket falls inside the rolling
// window is the authoritative usage for that key.
type Record struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Key         string    `gorm:"column:key;uniqueIndex:idx_rate_records_key_bucket,priority:1" json:"key"`
	Bucket      time.Time `gorm:"column:bucket;index;uniqueIndex:idx_rate_records_key_bucket,priority:2" json:"bucket"`
	Count       int64     `gorm:"column:count;not null;default:1" json:"count"`
	WindowMs    int64     `gorm:"column:window_ms" json:"window_ms"`
	MaxRequests int       `gorm:"column:max_requests" json:"max_requests"`
	Successful  int64     `gorm:"column:successful;default:0" json:"successful"`
	Failed      int64     `gorm:"column:failed;default:0" json:"failed"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Record) TableName() string {
	return "rate_limit_records"
}
