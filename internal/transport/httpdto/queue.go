package httpdto

// FailedJobsRequest holds query parameters for GET /queues/:name/failed
type FailedJobsRequest struct {
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
	Order string `form:"order"`
}

// NewestFirst reports the sort direction. Anything but "oldest" means newest first.
func (r FailedJobsRequest) NewestFirst() bool {
	return r.Order != "oldest"
}

// AutoRetryRequest holds query parameters for POST /queues/auto-retry
type AutoRetryRequest struct {
	PerQueueLimit int `form:"perQueueLimit"`
	MaxTotal      int `form:"maxTotal"`
}
