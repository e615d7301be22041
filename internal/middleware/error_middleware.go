package middleware

import (
	"net/http"

	"catalog-search/internal/transport/httpdto"
	"catalog-search/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders errors attached with c.Error when the handler did
// not write a body itself.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	l = logger.OrNop(l)
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		l.Ctx(c.Request.Context()).Errorf("request error: %s", err.Error())
		if c.Writer.Written() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), "INTERNAL_ERROR"))
	}
}
