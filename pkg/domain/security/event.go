package security

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventThreatDetected    = "threat_detected"
	EventRateLimitExceeded = "rate_limit_exceeded"
)

// Metadata is an arbitrary JSON document stored alongside an event.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan metadata: expected []byte, got %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Event is an append-only audit record. The defense layer only ever inserts
// events; it never mutates or deletes them.
type Event struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type      string    `gorm:"column:type;index" json:"type"`
	Message   string    `gorm:"column:message" json:"message"`
	Caller    string    `gorm:"column:caller;index" json:"caller"`
	Operation string    `gorm:"column:operation" json:"operation"`
	Metadata  Metadata  `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
}

func (Event) TableName() string {
	return "security_events"
}
