package outbox

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Status represents the processing state of an outbox entry
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// EventType tags what happened to the aggregate.
type EventType string

const (
	EventUpsert       EventType = "UPSERT"
	EventDelete       EventType = "DELETE"
	EventPriceChanged EventType = "PRICE_CHANGED"
)

// EventTypes lists every known tag.
var EventTypes = []EventType{EventUpsert, EventDelete, EventPriceChanged}

func ParseEventType(s string) (EventType, error) {
	for _, t := range EventTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// MaxErrorLength bounds what is stored in last_error.
const MaxErrorLength = 1000

// Entry is one pending or attempted index synchronization.
type Entry struct {
	ID           uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType    EventType         `gorm:"type:varchar(32);not null" json:"eventType"`
	AggregateID  int64             `gorm:"not null;index" json:"aggregateId"`
	Payload      datatypes.JSONMap `gorm:"type:jsonb" json:"payload"`
	Status       Status            `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_outbox_status_updated,priority:1" json:"status"`
	AttemptCount int               `gorm:"not null;default:0" json:"attemptCount"`
	LastError    *string           `gorm:"type:text" json:"lastError"`
	JobID        string            `gorm:"type:varchar(64);not null;default:''" json:"jobId,omitempty"`
	ProcessedAt  *time.Time        `json:"processedAt"`
	CreatedAt    time.Time         `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time         `gorm:"not null;index:idx_outbox_status_updated,priority:2" json:"updatedAt"`
}

// TableName returns the database table name
func (Entry) TableName() string {
	return "outbox_entries"
}

// Summary is a point in time count of entries per status.
type Summary struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// JobPayload is what travels on the sync queue. Only the id: the worker
// always re-reads the row.
type JobPayload struct {
	OutboxID uint64 `json:"outboxId"`
}
