package middleware

import (
	"context"
	"strconv"
	"strings"

	"catalog-search/pkg/logger"

	"github.com/gin-gonic/gin"
)

// UserHeader carries the caller id set by the upstream gateway.
const UserHeader = "X-User-Id"

// UserIDMiddleware copies a positive X-User-Id into the request context.
// Requests without one pass through untouched.
func UserIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(UserHeader))
		if raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
				ctx := context.WithValue(c.Request.Context(), logger.UserIdKey, id)
				c.Request = c.Request.WithContext(ctx)
			}
		}
		c.Next()
	}
}

// UserIDFromContext returns the caller id set by UserIDMiddleware.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(logger.UserIdKey).(int64)
	return id, ok && id > 0
}
