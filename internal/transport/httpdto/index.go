package httpdto

// EnqueueEventRequest is used for POST /index/outbox/events
type EnqueueEventRequest struct {
	EventType   string                 `json:"eventType" binding:"required"`
	AggregateID int64                  `json:"aggregateId" binding:"required"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

type EnqueueEventResponse struct {
	OutboxID uint64 `json:"outboxId"`
}

type ReindexResponse struct {
	Indexed int `json:"indexed"`
}

type RequeueResponse struct {
	RequeuedCount int `json:"requeuedCount"`
}

// ArchiveRequest holds query parameters for POST /index/outbox/archive
type ArchiveRequest struct {
	OlderThanDays int `form:"olderThanDays"`
}
