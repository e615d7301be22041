package handler

import (
	"errors"
	"net/http"

	"catalog-search/internal/transport/httpdto"
	catalog_errors "catalog-search/pkg/errors"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto status codes.
func respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, catalog_errors.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, catalog_errors.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, catalog_errors.ErrConflict):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, catalog_errors.ErrServiceUnavailable):
		status, code = http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	}
	_ = c.Error(err)
	c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(message, "INVALID_REQUEST"))
}
